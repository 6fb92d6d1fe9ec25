package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/did"
)

// readOnlySigner holds no key material. Every signing operation fails; the
// address and encryption seed come from the DID itself.
type readOnlySigner struct {
	identity did.DID
}

func newReadOnlySigner(d did.DID) Signer {
	return &readOnlySigner{identity: d}
}

func (s *readOnlySigner) DID() did.DID             { return s.identity }
func (s *readOnlySigner) ChainType() did.ChainType { return s.identity.Chain() }
func (s *readOnlySigner) CanSign() bool            { return false }

func (s *readOnlySigner) Address(context.Context) (string, error) {
	return s.identity.Address(), nil
}

func (s *readOnlySigner) SignAuthMessage(context.Context, string) (string, error) {
	return "", s.unavailable("sign auth message")
}

func (s *readOnlySigner) SignTypedData(context.Context, apitypes.TypedData) (string, error) {
	return "", s.unavailable("sign typed data")
}

func (s *readOnlySigner) SignSolanaTransaction(context.Context, *solana.Transaction) error {
	return s.unavailable("sign transaction")
}

func (s *readOnlySigner) EncryptionSeed(context.Context) (string, error) {
	return s.identity.Address(), nil
}

func (s *readOnlySigner) unavailable(op string) error {
	return xache.NewProtocolError(xache.ErrCodeSigningUnavailable,
		"read-only signer cannot "+op, xache.ErrSigningUnavailable).
		WithDetails("did", s.identity.String())
}
