package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/did"
	"github.com/xacheai/xache-go/logger"
)

// ExternalSigner is the contract an externally custodied signer must
// satisfy. Implementations hold the key; the adapter only encodes.
//
// SignMessage must follow the chain's auth-signature rules so that an
// external signer wrapping the same key as a raw-key signer produces
// byte-identical output: EVM implementations sign keccak256(message) with
// secp256k1 and return 65 bytes (recovery byte 27/28); Solana
// implementations sign the raw message bytes with ed25519 and return 64
// bytes.
type ExternalSigner interface {
	// Address returns the signer's chain address.
	Address() string

	// SignMessage signs arbitrary message bytes per the chain's rules.
	SignMessage(message []byte) ([]byte, error)

	// SignTypedData signs an EIP-712 structure and returns 65 raw bytes.
	// Solana implementations should return an error.
	SignTypedData(typed apitypes.TypedData) ([]byte, error)
}

// externalSigner adapts an ExternalSigner to the Signer contract.
type externalSigner struct {
	identity did.DID
	ext      ExternalSigner
	secret   string
	log      logger.Logger
}

func newExternalSigner(d did.DID, ext ExternalSigner, secret string, log logger.Logger) Signer {
	return &externalSigner{identity: d, ext: ext, secret: secret, log: log}
}

func (s *externalSigner) DID() did.DID             { return s.identity }
func (s *externalSigner) ChainType() did.ChainType { return s.identity.Chain() }
func (s *externalSigner) CanSign() bool            { return true }

func (s *externalSigner) Address(context.Context) (string, error) {
	return s.ext.Address(), nil
}

func (s *externalSigner) SignAuthMessage(_ context.Context, message string) (string, error) {
	sig, err := s.ext.SignMessage([]byte(message))
	if err != nil {
		return "", fmt.Errorf("external signer failed to sign auth message: %w", err)
	}
	if s.identity.Chain() == did.ChainSolana {
		return base58.Encode(sig), nil
	}
	return hex.EncodeToString(sig), nil
}

func (s *externalSigner) SignTypedData(_ context.Context, typed apitypes.TypedData) (string, error) {
	if s.identity.Chain() != did.ChainEVM {
		return "", xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"Solana signer cannot produce EIP-712 signatures", xache.ErrChainMismatch)
	}
	sig, err := s.ext.SignTypedData(typed)
	if err != nil {
		return "", fmt.Errorf("external signer failed to sign typed data: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func (s *externalSigner) SignSolanaTransaction(_ context.Context, tx *solana.Transaction) error {
	if s.identity.Chain() != did.ChainSolana {
		return xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"EVM signer cannot sign Solana transactions", xache.ErrChainMismatch)
	}
	msg, err := solanaMessageBytes(tx)
	if err != nil {
		return err
	}
	sig, err := s.ext.SignMessage(msg)
	if err != nil {
		return fmt.Errorf("external signer failed to sign transaction: %w", err)
	}
	pub, err := solana.PublicKeyFromBase58(s.ext.Address())
	if err != nil {
		return fmt.Errorf("external signer returned an invalid Solana address: %w", err)
	}
	return applySolanaSignature(tx, pub, sig)
}

func (s *externalSigner) EncryptionSeed(context.Context) (string, error) {
	if s.secret != "" {
		return s.secret, nil
	}
	// Falling back to the public address gives a much weaker seed than key
	// material; callers relying on external signers should set an explicit
	// EncryptionSecret instead.
	s.log.Warn("deriving encryption seed from public address", map[string]any{
		"did": s.identity.String(),
	})
	return s.ext.Address(), nil
}

// LocalEVMSigner is an in-process ExternalSigner over a secp256k1 key. It
// exists for tests and for wiring local keys through code paths that expect
// the external-signer contract.
type LocalEVMSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalEVMSigner parses a hex private key (0x prefix optional).
func NewLocalEVMSigner(hexKey string) (*LocalEVMSigner, error) {
	key, err := crypto.HexToECDSA(strip0x(hexKey))
	if err != nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "malformed EVM private key", xache.ErrInvalidKey)
	}
	return &LocalEVMSigner{key: key}, nil
}

func (l *LocalEVMSigner) Address() string {
	return crypto.PubkeyToAddress(l.key.PublicKey).Hex()
}

func (l *LocalEVMSigner) SignMessage(message []byte) ([]byte, error) {
	return signEVMDigest(l.key, crypto.Keccak256(message))
}

func (l *LocalEVMSigner) SignTypedData(typed apitypes.TypedData) ([]byte, error) {
	digest, err := hashTypedData(typed)
	if err != nil {
		return nil, err
	}
	return signEVMDigest(l.key, digest)
}

// LocalSolanaSigner is an in-process ExternalSigner over an ed25519 key.
type LocalSolanaSigner struct {
	key ed25519.PrivateKey
}

// NewLocalSolanaSigner wraps an ed25519 private key or 32-byte seed.
func NewLocalSolanaSigner(key []byte) (*LocalSolanaSigner, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return &LocalSolanaSigner{key: ed25519.NewKeyFromSeed(key)}, nil
	case ed25519.PrivateKeySize:
		return &LocalSolanaSigner{key: ed25519.PrivateKey(key)}, nil
	default:
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "malformed Solana private key", xache.ErrInvalidKey)
	}
}

func (l *LocalSolanaSigner) Address() string {
	return base58.Encode(l.key.Public().(ed25519.PublicKey))
}

func (l *LocalSolanaSigner) SignMessage(message []byte) ([]byte, error) {
	return ed25519.Sign(l.key, message), nil
}

func (l *LocalSolanaSigner) SignTypedData(apitypes.TypedData) ([]byte, error) {
	return nil, xache.ErrChainMismatch
}

func strip0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
