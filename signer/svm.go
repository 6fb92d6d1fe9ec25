package signer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/xacheai/xache-go"
)

// applySolanaSignature writes sig into the transaction's signature slot for
// pub. The key must be one of the message's required signers; silently
// skipping an unmatched key would emit a transaction the facilitator cannot
// settle, so that case is a hard error.
func applySolanaSignature(tx *solana.Transaction, pub solana.PublicKey, sig []byte) error {
	if len(sig) != 64 {
		return fmt.Errorf("%w: expected 64-byte ed25519 signature, got %d bytes",
			xache.ErrPaymentFailed, len(sig))
	}

	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	slot := -1
	for i := 0; i < numSigners && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("%w: signer %s is not a required signer of the transaction",
			xache.ErrPaymentFailed, pub)
	}

	for len(tx.Signatures) < numSigners {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	var s solana.Signature
	copy(s[:], sig)
	tx.Signatures[slot] = s
	return nil
}

// solanaMessageBytes serializes the transaction message for signing.
func solanaMessageBytes(tx *solana.Transaction) ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction message: %w", err)
	}
	return msg, nil
}
