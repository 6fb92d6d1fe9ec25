// Package http provides the authenticated transport for the Xache agent
// protocol. Every request carries the canonical DID signature headers; 402
// responses are paid via the payment handler and retried exactly once, with
// the challenge id replacing the idempotency key so the server can collapse
// the unpaid and paid attempts into one operation.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/logger"
	"github.com/xacheai/xache-go/payment"
	"github.com/xacheai/xache-go/retry"
	"github.com/xacheai/xache-go/signer"
)

// PaymentHandler converts a parsed challenge into a signed envelope. It is
// satisfied by *payment.Handler.
type PaymentHandler interface {
	Handle(ctx context.Context, ch xache.PaymentChallenge) (*xache.PaymentEnvelope, error)
}

// Client is an HTTP client that signs every request and settles payment
// challenges automatically.
type Client struct {
	http     *nethttp.Client
	signer   signer.Signer
	payments PaymentHandler
	retry    retry.Config
	log      logger.Logger
	now      func() time.Time

	onPaymentAttempt xache.PaymentCallback
	onPaymentSuccess xache.PaymentCallback
	onPaymentFailure xache.PaymentCallback
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *nethttp.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithTimeout sets the per-request timeout on the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithPaymentHandler replaces the default payment handler.
func WithPaymentHandler(h PaymentHandler) Option {
	return func(c *Client) { c.payments = h }
}

// WithRetryConfig replaces the default backoff configuration for transient
// failures.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithPaymentCallbacks registers payment lifecycle callbacks. Pass nil for
// any callback you don't want.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure xache.PaymentCallback) Option {
	return func(c *Client) {
		c.onPaymentAttempt = onAttempt
		c.onPaymentSuccess = onSuccess
		c.onPaymentFailure = onFailure
	}
}

// WithClock overrides the time source used for signature timestamps and
// idempotency keys.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	idempotencyKey string
	skipAuth       bool
}

// WithIdempotencyKey attaches the caller's own Idempotency-Key instead of a
// generated one. The paid retry of a 402 still replaces it with the
// challenge id.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) { o.idempotencyKey = key }
}

// WithSkipAuth omits the identity and signature headers for this request.
func WithSkipAuth() RequestOption {
	return func(o *requestOptions) { o.skipAuth = true }
}

// NewClient builds a client around the given signer.
func NewClient(s signer.Signer, opts ...Option) (*Client, error) {
	if s == nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"client requires a signer", errors.New("nil signer"))
	}
	c := &Client{
		http:   &nethttp.Client{},
		signer: s,
		retry:  retry.DefaultConfig,
		log:    logger.NoopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.payments == nil {
		c.payments = payment.NewHandler(s, payment.WithLogger(c.log))
	}
	return c, nil
}

// Response is the decoded result of a request, including any settlement the
// server reported after a payment.
type Response struct {
	StatusCode int
	Header     nethttp.Header
	Body       []byte

	// Paid reports whether this response came from a paid retry.
	Paid bool

	// Settlement is the decoded payment response header, if present.
	Settlement *xache.SettlementResponse
}

// Get issues a signed GET request, paying any 402 challenge.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, url, nil, opts...)
}

// Post issues a signed POST request with a JSON body, paying any 402
// challenge.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, url, body, opts...)
}

// Put issues a signed PUT request with a JSON body, paying any 402
// challenge.
func (c *Client) Put(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, url, body, opts...)
}

// Delete issues a signed DELETE request, paying any 402 challenge.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, url, nil, opts...)
}
