package signer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/singleflight"

	"github.com/xacheai/xache-go/did"
	"github.com/xacheai/xache-go/logger"
)

// providerSigner lazily resolves a wallet provider into an external signer
// on first use and memoizes the result. Concurrent first resolutions
// collapse into one underlying call; resolution errors are not memoized, so
// the next call retries.
type providerSigner struct {
	identity did.DID
	resolve  ProviderFunc
	secret   string
	log      logger.Logger

	mu       sync.Mutex
	resolved Signer
	group    singleflight.Group
}

func newProviderSigner(d did.DID, resolve ProviderFunc, secret string, log logger.Logger) Signer {
	return &providerSigner{identity: d, resolve: resolve, secret: secret, log: log}
}

func (s *providerSigner) signer(ctx context.Context) (Signer, error) {
	s.mu.Lock()
	if s.resolved != nil {
		defer s.mu.Unlock()
		return s.resolved, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("resolve", func() (interface{}, error) {
		ext, err := s.resolve(ctx)
		if err != nil {
			return nil, err
		}
		inner := newExternalSigner(s.identity, ext, s.secret, s.log)
		s.mu.Lock()
		s.resolved = inner
		s.mu.Unlock()
		s.log.Debug("wallet provider resolved", map[string]any{
			"did":     s.identity.String(),
			"address": ext.Address(),
		})
		return inner, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Signer), nil
}

func (s *providerSigner) DID() did.DID             { return s.identity }
func (s *providerSigner) ChainType() did.ChainType { return s.identity.Chain() }
func (s *providerSigner) CanSign() bool            { return true }

func (s *providerSigner) Address(ctx context.Context) (string, error) {
	inner, err := s.signer(ctx)
	if err != nil {
		return "", err
	}
	return inner.Address(ctx)
}

func (s *providerSigner) SignAuthMessage(ctx context.Context, message string) (string, error) {
	inner, err := s.signer(ctx)
	if err != nil {
		return "", err
	}
	return inner.SignAuthMessage(ctx, message)
}

func (s *providerSigner) SignTypedData(ctx context.Context, typed apitypes.TypedData) (string, error) {
	inner, err := s.signer(ctx)
	if err != nil {
		return "", err
	}
	return inner.SignTypedData(ctx, typed)
}

func (s *providerSigner) SignSolanaTransaction(ctx context.Context, tx *solana.Transaction) error {
	inner, err := s.signer(ctx)
	if err != nil {
		return err
	}
	return inner.SignSolanaTransaction(ctx, tx)
}

func (s *providerSigner) EncryptionSeed(ctx context.Context) (string, error) {
	if s.secret != "" {
		return s.secret, nil
	}
	inner, err := s.signer(ctx)
	if err != nil {
		return "", err
	}
	return inner.EncryptionSeed(ctx)
}
