// Package signer provides the signing adapter used for request
// authentication and payment authorization. One adapter is constructed per
// client and lives for the client's lifetime.
//
// The adapter is a closed capability set with four variants, selected
// deterministically from the configuration:
//
//	RawKey > ExternalSigner > WalletProvider > ReadOnly
//
// A caller who supplies a private key always gets raw-key signing, even if
// other fields are also set, so signature bytes stay backward compatible.
// The signing algorithm is chosen from the DID's chain type, never from the
// key material, so the choice stays consistent even when no key is present.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/did"
	"github.com/xacheai/xache-go/logger"
)

// Signer is the capability contract shared by all four variants.
type Signer interface {
	// DID returns the identity this signer authenticates as.
	DID() did.DID

	// ChainType is derived from the DID, never from key bytes.
	ChainType() did.ChainType

	// Address returns the signing address. Idempotent; provider-backed
	// variants cache it after the first resolution.
	Address(ctx context.Context) (string, error)

	// CanSign reports whether this variant holds signing capability.
	// Only the read-only variant returns false.
	CanSign() bool

	// SignAuthMessage signs the canonical request-auth message. EVM signers
	// hash the raw message bytes with keccak-256 (no EIP-191 prefix) and
	// sign with secp256k1, returning 65 bytes as lowercase hex without a 0x
	// prefix. Solana signers sign the UTF-8 bytes directly with ed25519 (no
	// hashing step) and return 64 bytes base58-encoded.
	SignAuthMessage(ctx context.Context, message string) (string, error)

	// SignTypedData performs EIP-712 structured signing and returns a
	// 0x-prefixed hex signature. Fails with xache.ErrChainMismatch on
	// Solana signers.
	SignTypedData(ctx context.Context, typed apitypes.TypedData) (string, error)

	// SignSolanaTransaction writes this signer's signature into its slot of
	// the transaction. The signer's static account key must appear among
	// the required signers; an unmatched key is a fatal error, never a
	// silent skip. Fails with xache.ErrChainMismatch on EVM signers.
	SignSolanaTransaction(ctx context.Context, tx *solana.Transaction) error

	// EncryptionSeed returns the secret an external collaborator derives
	// encryption keys from. Raw-key signers return their key; signers
	// without local key material fall back to an explicit override or, as a
	// weaker last resort, the resolved address.
	EncryptionSeed(ctx context.Context) (string, error)
}

// ProviderFunc lazily resolves a wallet provider into an ExternalSigner.
// It is invoked at most once per adapter; concurrent first calls collapse
// into a single resolution.
type ProviderFunc func(ctx context.Context) (ExternalSigner, error)

// Config selects and parameterizes a signer variant.
type Config struct {
	// DID is the caller identity. Required; its chain segment decides the
	// signing algorithm.
	DID string `validate:"required"`

	// PrivateKey is a hex private key, with or without a 0x prefix.
	// Supplying it always selects the raw-key variant.
	PrivateKey string

	// External is an externally custodied signer.
	External ExternalSigner

	// Provider lazily resolves to an ExternalSigner on first use.
	Provider ProviderFunc

	// EncryptionSecret overrides the encryption seed for variants that
	// would otherwise fall back to key material or the address.
	EncryptionSecret string

	// Logger receives structured diagnostics. Defaults to a no-op sink.
	Logger logger.Logger
}

var validate = validator.New()

// New builds the signer variant implied by the configuration.
func New(cfg Config) (Signer, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "invalid signer configuration", err)
	}

	d, err := did.Parse(cfg.DID)
	if err != nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig, "invalid signer DID", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}

	switch {
	case cfg.PrivateKey != "":
		return newRawKeySigner(d, cfg.PrivateKey, cfg.EncryptionSecret)
	case cfg.External != nil:
		return newExternalSigner(d, cfg.External, cfg.EncryptionSecret, log), nil
	case cfg.Provider != nil:
		return newProviderSigner(d, cfg.Provider, cfg.EncryptionSecret, log), nil
	default:
		return newReadOnlySigner(d), nil
	}
}
