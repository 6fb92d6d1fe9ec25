// Package xache contains the wire types, error model, and network table for
// the Xache agent protocol's request-signing and gasless-payment engine.
//
// The payment flow follows the x402 micropayment handshake: a server gates a
// metered operation behind HTTP 402, the client signs a chain-specific
// authorization, and a remote facilitator settles it on-chain.
package xache

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Protocol versions supported by this SDK.
const (
	X402Version1 = 1
	X402Version2 = 2
)

// Payment header names. Version 1 servers use the legacy X- prefixed pair;
// version 2 servers use the bare names.
const (
	PaymentHeaderV1         = "X-PAYMENT"
	PaymentResponseHeaderV1 = "X-PAYMENT-RESPONSE"
	PaymentHeaderV2         = "PAYMENT"
	PaymentResponseHeaderV2 = "PAYMENT-RESPONSE"
)

// PaymentHeaderName returns the request header carrying the signed payment
// for the given protocol version.
func PaymentHeaderName(version int) string {
	if version >= X402Version2 {
		return PaymentHeaderV2
	}
	return PaymentHeaderV1
}

// PaymentResponseHeaderName returns the response header carrying settlement
// information for the given protocol version.
func PaymentResponseHeaderName(version int) string {
	if version >= X402Version2 {
		return PaymentResponseHeaderV2
	}
	return PaymentResponseHeaderV1
}

// PaymentChallenge is a parsed 402 challenge. It is immutable after parsing
// and consumed exactly once per payment attempt.
type PaymentChallenge struct {
	// ChallengeID identifies the logical operation being paid for. The paid
	// retry reuses it as the Idempotency-Key so the server can collapse the
	// unpaid and paid attempts into one operation.
	ChallengeID string

	// Amount is the required payment in atomic units, as a decimal string.
	Amount string

	// Network is the blockchain network identifier (e.g. "base", "solana").
	Network string

	// PayTo is the recipient address.
	PayTo string

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string

	// Description is an optional human-readable payment description.
	Description string

	// Resource is the URL of the protected resource.
	Resource string

	// FeePayer is the facilitator account that co-signs and pays network
	// fees. Solana only; required there, empty for EVM networks.
	FeePayer string

	// Version is the x402 protocol version the server announced (1 or 2).
	Version int
}

// ERC3009Authorization carries the transferWithAuthorization parameters on
// the wire. Numeric fields are decimal strings and the nonce is 0x-prefixed
// hex, so no precision is lost in JSON.
type ERC3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// EIP712Domain is the domain block echoed alongside the signature so the
// facilitator can re-derive the signer independently.
type EIP712Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// ExactEVMPayload is the signed EVM payment body. Field order matters: the
// settling facilitator's parser expects the signature first.
type ExactEVMPayload struct {
	Signature     string               `json:"signature"`
	Authorization ERC3009Authorization `json:"authorization"`
	Domain        EIP712Domain         `json:"domain"`
}

// SVMPayload is the signed Solana payment body: a base64-encoded transaction
// signed by the token sender, with the fee payer's signature slot left for
// the facilitator to fill.
type SVMPayload struct {
	Transaction string `json:"transaction"`
}

// PaymentPayload is the versioned payment envelope body.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`

	// Payload is an ExactEVMPayload or SVMPayload depending on the network.
	Payload interface{} `json:"payload"`
}

// PaymentRequirements restates the challenge terms so the facilitator can
// verify the payment against what the server asked for.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	PayTo             string                 `json:"payTo"`
	Asset             string                 `json:"asset"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentEnvelope is the full wire object that gets base64-encoded into the
// payment header.
type PaymentEnvelope struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettlementResponse is the server's settlement report, decoded from the
// payment response header.
type SettlementResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
}

// Scheme is the only payment scheme this SDK implements.
const Scheme = "exact"

// FormatTokenAmount renders an atomic-unit value as a human-readable dollar
// string with the token's full decimal precision, e.g. 500000 with 6
// decimals becomes "$0.500000".
func FormatTokenAmount(atomic *big.Int, decimals int) string {
	if atomic == nil {
		atomic = big.NewInt(0)
	}
	d := decimal.NewFromBigInt(atomic, -int32(decimals))
	return "$" + d.StringFixed(int32(decimals))
}

// ParseAtomicAmount parses an atomic-unit decimal string into a big.Int.
func ParseAtomicAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}
