package payment

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/xacheai/xache-go"
)

func (h *Handler) solanaPayload(ctx context.Context, ch xache.PaymentChallenge, network xache.NetworkConfig, asset string, amount *big.Int) (xache.SVMPayload, error) {
	// The fee payer comes from the challenge, never from configuration: only
	// the facilitator knows which account will co-sign and pay fees.
	if ch.FeePayer == "" {
		return xache.SVMPayload{}, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"Solana challenge is missing the facilitator fee payer", xache.ErrMissingFeePayer).
			WithDetails("network", ch.Network)
	}
	feePayer, err := solana.PublicKeyFromBase58(ch.FeePayer)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("%w: invalid fee payer %q", xache.ErrInvalidChallenge, ch.FeePayer)
	}
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("%w: invalid mint %q", xache.ErrInvalidChallenge, asset)
	}
	recipient, err := solana.PublicKeyFromBase58(ch.PayTo)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("%w: invalid recipient %q", xache.ErrInvalidChallenge, ch.PayTo)
	}
	if !amount.IsUint64() {
		return xache.SVMPayload{}, fmt.Errorf("%w: amount %s exceeds u64", xache.ErrInvalidAmount, amount)
	}

	addr, err := h.signer.Address(ctx)
	if err != nil {
		return xache.SVMPayload{}, err
	}
	owner, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("signer returned an invalid Solana address: %w", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("failed to derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	// A stale or zero blockhash is recoverable: the facilitator refreshes it
	// before co-signing and submitting.
	blockhash, err := h.sol.LatestBlockhash(ctx, network)
	if err != nil {
		h.log.Warn("blockhash fetch failed, using placeholder", map[string]any{
			"network": network.NetworkID,
			"error":   err.Error(),
		})
		blockhash = solana.Hash{}
	}

	transfer := solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.Meta(sourceATA).WRITE(),
			solana.Meta(destATA).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		splTransferData(amount.Uint64()),
	)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("failed to assemble transaction: %w", err)
	}

	// Partial signing: only the token owner's slot is filled here. The fee
	// payer slot stays zeroed for the facilitator.
	if err := h.signer.SignSolanaTransaction(ctx, tx); err != nil {
		return xache.SVMPayload{}, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return xache.SVMPayload{}, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return xache.SVMPayload{Transaction: base64.StdEncoding.EncodeToString(raw)}, nil
}

// splTransferData encodes the SPL token Transfer instruction:
// discriminator 3 followed by the amount as little-endian u64.
func splTransferData(amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// rpcSolanaReader fetches blockhashes from the network's public RPC
// endpoint.
type rpcSolanaReader struct{}

func newRPCSolanaReader() *rpcSolanaReader { return &rpcSolanaReader{} }

func (r *rpcSolanaReader) LatestBlockhash(ctx context.Context, network xache.NetworkConfig) (solana.Hash, error) {
	client := rpc.New(network.RPCURL)
	defer client.Close()

	out, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("%w: blockhash fetch on %s: %v", xache.ErrNetworkFailure, network.NetworkID, err)
	}
	return out.Value.Blockhash, nil
}
