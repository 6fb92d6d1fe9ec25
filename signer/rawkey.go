package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/did"
)

// newRawKeySigner builds the raw-key variant. It is the highest-priority
// variant: supplying a key always selects it, preserving exact signature
// bytes for existing callers. The concrete type is chosen from the DID's
// chain segment, not from the key bytes.
func newRawKeySigner(d did.DID, hexKey, secret string) (Signer, error) {
	cleaned := strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")

	switch d.Chain() {
	case did.ChainEVM:
		key, err := crypto.HexToECDSA(cleaned)
		if err != nil {
			return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "malformed EVM private key", xache.ErrInvalidKey)
		}
		return &rawEVMSigner{identity: d, keyHex: cleaned, key: key, secret: secret}, nil

	case did.ChainSolana:
		raw, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "malformed Solana private key", xache.ErrInvalidKey)
		}
		var key ed25519.PrivateKey
		switch len(raw) {
		case ed25519.SeedSize:
			key = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			key = ed25519.PrivateKey(raw)
		default:
			return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
				fmt.Sprintf("Solana private key must be %d or %d bytes, got %d",
					ed25519.SeedSize, ed25519.PrivateKeySize, len(raw)),
				xache.ErrInvalidKey)
		}
		return &rawSolanaSigner{identity: d, keyHex: cleaned, key: key, secret: secret}, nil

	default:
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "unsupported chain type", xache.ErrInvalidDID)
	}
}

// rawEVMSigner signs with an in-process secp256k1 key.
type rawEVMSigner struct {
	identity did.DID
	keyHex   string
	key      *ecdsa.PrivateKey
	secret   string
}

func (s *rawEVMSigner) DID() did.DID             { return s.identity }
func (s *rawEVMSigner) ChainType() did.ChainType { return did.ChainEVM }
func (s *rawEVMSigner) CanSign() bool            { return true }

func (s *rawEVMSigner) Address(context.Context) (string, error) {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex(), nil
}

func (s *rawEVMSigner) SignAuthMessage(_ context.Context, message string) (string, error) {
	sig, err := signEVMDigest(s.key, authMessageDigest(message))
	if err != nil {
		return "", fmt.Errorf("failed to sign auth message: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

func (s *rawEVMSigner) SignTypedData(_ context.Context, typed apitypes.TypedData) (string, error) {
	digest, err := hashTypedData(typed)
	if err != nil {
		return "", err
	}
	sig, err := signEVMDigest(s.key, digest)
	if err != nil {
		return "", fmt.Errorf("failed to sign typed data: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func (s *rawEVMSigner) SignSolanaTransaction(context.Context, *solana.Transaction) error {
	return xache.NewProtocolError(xache.ErrCodeInvalidConfig,
		"EVM signer cannot sign Solana transactions", xache.ErrChainMismatch)
}

func (s *rawEVMSigner) EncryptionSeed(context.Context) (string, error) {
	if s.secret != "" {
		return s.secret, nil
	}
	return s.keyHex, nil
}

// rawSolanaSigner signs with an in-process ed25519 key.
type rawSolanaSigner struct {
	identity did.DID
	keyHex   string
	key      ed25519.PrivateKey
	secret   string
}

func (s *rawSolanaSigner) DID() did.DID             { return s.identity }
func (s *rawSolanaSigner) ChainType() did.ChainType { return did.ChainSolana }
func (s *rawSolanaSigner) CanSign() bool            { return true }

func (s *rawSolanaSigner) publicKey() solana.PublicKey {
	return solana.PublicKeyFromBytes(s.key.Public().(ed25519.PublicKey))
}

func (s *rawSolanaSigner) Address(context.Context) (string, error) {
	return base58.Encode(s.key.Public().(ed25519.PublicKey)), nil
}

func (s *rawSolanaSigner) SignAuthMessage(_ context.Context, message string) (string, error) {
	// Solana signs the raw UTF-8 bytes; there is no pre-hash step.
	sig := ed25519.Sign(s.key, []byte(message))
	return base58.Encode(sig), nil
}

func (s *rawSolanaSigner) SignTypedData(context.Context, apitypes.TypedData) (string, error) {
	return "", xache.NewProtocolError(xache.ErrCodeInvalidConfig,
		"Solana signer cannot produce EIP-712 signatures", xache.ErrChainMismatch)
}

func (s *rawSolanaSigner) SignSolanaTransaction(_ context.Context, tx *solana.Transaction) error {
	msg, err := solanaMessageBytes(tx)
	if err != nil {
		return err
	}
	sig := ed25519.Sign(s.key, msg)
	return applySolanaSignature(tx, s.publicKey(), sig)
}

func (s *rawSolanaSigner) EncryptionSeed(context.Context) (string, error) {
	if s.secret != "" {
		return s.secret, nil
	}
	return s.keyHex, nil
}
