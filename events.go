package xache

import "time"

// PaymentEventType classifies a payment lifecycle event.
type PaymentEventType string

const (
	// PaymentEventAttempt fires after a challenge is parsed, before signing.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess fires when the paid retry settles successfully.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure fires when signing or the paid retry fails.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent describes a payment lifecycle event delivered to callbacks.
// Callbacks run synchronously on the request path; slow callbacks slow the
// request.
type PaymentEvent struct {
	// Type is the event type.
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// URL is the resource that required payment.
	URL string

	// ChallengeID is the server's challenge identifier, when present.
	ChallengeID string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the token contract or mint address.
	Asset string

	// Network is the blockchain network.
	Network string

	// Recipient is the payment recipient address.
	Recipient string

	// Transaction is the settlement transaction hash (success events).
	Transaction string

	// Payer is the address that made the payment (success events).
	Payer string

	// Error carries the failure cause (failure events).
	Error error

	// Duration is the elapsed time since the payment attempt started.
	Duration time.Duration
}

// PaymentCallback receives payment lifecycle events.
type PaymentCallback func(PaymentEvent)
