package xache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors. Wrap these with ProtocolError (or fmt.Errorf %w) so
// callers can match with errors.Is.
var (
	// ErrInvalidDID indicates a malformed decentralized identifier.
	ErrInvalidDID = errors.New("xache: invalid DID")

	// ErrInvalidKey indicates malformed private key material.
	ErrInvalidKey = errors.New("xache: invalid private key")

	// ErrInvalidNetwork indicates an unknown or unsupported network id.
	ErrInvalidNetwork = errors.New("xache: invalid or unsupported network")

	// ErrInvalidAmount indicates a malformed atomic amount string.
	ErrInvalidAmount = errors.New("xache: invalid amount")

	// ErrInvalidChallenge indicates a 402 body that could not be parsed
	// into a payment challenge.
	ErrInvalidChallenge = errors.New("xache: invalid payment challenge")

	// ErrSigningUnavailable indicates a read-only signer was asked to sign.
	ErrSigningUnavailable = errors.New("xache: signing unavailable")

	// ErrChainMismatch indicates an operation that does not exist on the
	// signer's chain (e.g. typed-data signing on Solana).
	ErrChainMismatch = errors.New("xache: operation not supported on this chain")

	// ErrInsufficientFunds indicates the payer's token balance cannot cover
	// the required amount.
	ErrInsufficientFunds = errors.New("xache: insufficient funds")

	// ErrNonceUsed indicates the authorization nonce was already consumed
	// on-chain. The caller must start a new logical call.
	ErrNonceUsed = errors.New("xache: authorization nonce already used")

	// ErrStaleTimestamp indicates a locally generated request timestamp
	// fell outside the replay window. Fatal, never retried.
	ErrStaleTimestamp = errors.New("xache: stale request timestamp")

	// ErrMissingFeePayer indicates a Solana challenge without a designated
	// fee payer account.
	ErrMissingFeePayer = errors.New("xache: missing fee payer")

	// ErrNetworkFailure indicates a transient network or server failure.
	ErrNetworkFailure = errors.New("xache: network error")

	// ErrMalformedHeader indicates an undecodable payment header.
	ErrMalformedHeader = errors.New("xache: malformed payment header")

	// ErrUnsupportedVersion indicates an x402 version this SDK cannot speak.
	ErrUnsupportedVersion = errors.New("xache: unsupported protocol version")

	// ErrPaymentFailed indicates the payment handler could not produce a
	// settled authorization.
	ErrPaymentFailed = errors.New("xache: payment failed")

	// ErrInvalidMnemonic indicates an invalid BIP-39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("xache: invalid mnemonic phrase")

	// ErrInvalidKeystore indicates an unreadable or undecryptable keystore.
	ErrInvalidKeystore = errors.New("xache: invalid keystore file")
)

// ErrorCode classifies a ProtocolError so callers can dispatch on kind
// instead of string-matching messages.
type ErrorCode string

const (
	ErrCodeInvalidConfig      ErrorCode = "invalid_config"
	ErrCodeSigningUnavailable ErrorCode = "signing_unavailable"
	ErrCodeInsufficientFunds  ErrorCode = "insufficient_funds"
	ErrCodeNonceConflict      ErrorCode = "nonce_conflict"
	ErrCodeNetworkError       ErrorCode = "network_error"
	ErrCodePaymentFailed      ErrorCode = "payment_failed"
)

// ProtocolError is a structured error carrying a classification code, a
// human-readable message, the underlying cause, and free-form detail pairs
// (amounts, addresses, challenge ids) for the caller to act on.
type ProtocolError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]string
}

// NewProtocolError creates a ProtocolError wrapping err.
func NewProtocolError(code ErrorCode, message string, err error) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Err: err}
}

// WithDetails attaches a key/value detail pair and returns the error for
// chaining.
func (e *ProtocolError) WithDetails(key, value string) *ProtocolError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, e.Details[k]))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(pairs, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err represents a transient condition worth
// retrying. Only network-kind failures qualify; configuration, signing,
// funds, and nonce errors are definitive.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeNetworkError
	}
	return errors.Is(err, ErrNetworkFailure)
}
