// Package payment converts parsed 402 challenges into signed payment
// envelopes. EVM networks get an ERC-3009 transferWithAuthorization signed
// off-chain; Solana networks get a partially signed SPL token transfer with
// the fee payer slot left open for the facilitator. The handler never
// submits anything on-chain itself.
package payment

import (
	"context"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/logger"
	"github.com/xacheai/xache-go/signer"
)

// EVMReader performs the read-only contract probes the EVM flow runs before
// signing. Both probes are advisory on RPC failure but authoritative on a
// definite answer.
type EVMReader interface {
	// TokenBalance returns the owner's token balance in atomic units.
	TokenBalance(ctx context.Context, network xache.NetworkConfig, token, owner string) (*big.Int, error)

	// AuthorizationState reports whether an ERC-3009 nonce has already been
	// consumed for the authorizer.
	AuthorizationState(ctx context.Context, network xache.NetworkConfig, token, authorizer string, nonce [32]byte) (bool, error)
}

// SolanaReader fetches the chain state needed to assemble a transaction.
type SolanaReader interface {
	// LatestBlockhash returns a recent blockhash for transaction assembly.
	LatestBlockhash(ctx context.Context, network xache.NetworkConfig) (solana.Hash, error)
}

// Handler signs payment challenges on behalf of one signer.
type Handler struct {
	signer signer.Signer
	evm    EVMReader
	sol    SolanaReader
	log    logger.Logger
	now    func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithEVMReader replaces the default RPC-backed contract reader.
func WithEVMReader(r EVMReader) Option {
	return func(h *Handler) { h.evm = r }
}

// WithSolanaReader replaces the default RPC-backed Solana reader.
func WithSolanaReader(r SolanaReader) Option {
	return func(h *Handler) { h.sol = r }
}

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithClock overrides the time source for the authorization validity window.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler builds a Handler for the given signer. By default chain probes
// go to the public RPC endpoint from the network table.
func NewHandler(s signer.Signer, opts ...Option) *Handler {
	h := &Handler{
		signer: s,
		log:    logger.NoopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.evm == nil {
		h.evm = newRPCEVMReader()
	}
	if h.sol == nil {
		h.sol = newRPCSolanaReader()
	}
	return h
}

// Handle converts a challenge into a signed payment envelope ready for
// header encoding. Each challenge is consumed exactly once; calling Handle
// again produces a fresh authorization with a fresh nonce.
func (h *Handler) Handle(ctx context.Context, ch xache.PaymentChallenge) (*xache.PaymentEnvelope, error) {
	if !h.signer.CanSign() {
		return nil, xache.NewProtocolError(xache.ErrCodeSigningUnavailable,
			"cannot pay without signing capability", xache.ErrSigningUnavailable).
			WithDetails("did", h.signer.DID().String())
	}

	network, err := xache.LookupNetwork(ch.Network)
	if err != nil {
		return nil, err
	}

	amount, err := xache.ParseAtomicAmount(ch.Amount)
	if err != nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"challenge carries an unparseable amount", err).
			WithDetails("amount", ch.Amount)
	}

	asset := ch.Asset
	if asset == "" {
		asset = network.USDCAddress
	}

	version := ch.Version
	if version == 0 {
		version = xache.X402Version1
	}

	var payload interface{}
	if xache.IsSolanaNetwork(ch.Network) {
		payload, err = h.solanaPayload(ctx, ch, network, asset, amount)
	} else {
		payload, err = h.evmPayload(ctx, ch, network, asset, amount)
	}
	if err != nil {
		return nil, err
	}

	h.log.Info("payment authorization signed", map[string]any{
		"network":   ch.Network,
		"amount":    ch.Amount,
		"challenge": ch.ChallengeID,
	})

	requirements := xache.PaymentRequirements{
		Scheme:            xache.Scheme,
		Network:           ch.Network,
		MaxAmountRequired: ch.Amount,
		PayTo:             ch.PayTo,
		Asset:             asset,
		Resource:          ch.Resource,
		Description:       ch.Description,
	}
	// The requirements restate the EIP-712 domain so the facilitator can
	// re-derive the signer without trusting the payload.
	if evm, ok := payload.(xache.ExactEVMPayload); ok {
		requirements.Extra = map[string]interface{}{
			"name":              evm.Domain.Name,
			"version":           evm.Domain.Version,
			"chainId":           evm.Domain.ChainID,
			"verifyingContract": evm.Domain.VerifyingContract,
		}
	}

	return &xache.PaymentEnvelope{
		X402Version: version,
		PaymentPayload: xache.PaymentPayload{
			X402Version: version,
			Scheme:      xache.Scheme,
			Network:     ch.Network,
			Payload:     payload,
		},
		PaymentRequirements: requirements,
	}, nil
}
