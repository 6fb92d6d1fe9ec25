package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xacheai/xache-go"
	"github.com/xacheai/xache-go/auth"
	"github.com/xacheai/xache-go/encoding"
	"github.com/xacheai/xache-go/retry"
)

// HeaderIdempotencyKey deduplicates mutating requests server-side.
const HeaderIdempotencyKey = "Idempotency-Key"

// Do issues a signed request and drives the payment flow. Transient
// failures (network errors, 5xx, 408, 429) are retried with jittered
// backoff; a 402 is paid and retried exactly once; other 4xx are returned
// as-is without retry.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.request(ctx, method, rawURL, body, true, opts)
}

// RequestWithPayment is Do under its protocol name: the request variant
// that settles 402 challenges.
func (c *Client) RequestWithPayment(ctx context.Context, method, rawURL string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.request(ctx, method, rawURL, body, true, opts)
}

// Request issues a signed request without the payment flow: a 402 response
// comes back to the caller unpaid, challenge body and all. Transient
// failures are still retried.
func (c *Client) Request(ctx context.Context, method, rawURL string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.request(ctx, method, rawURL, body, false, opts)
}

func (c *Client) request(ctx context.Context, method, rawURL string, body []byte, pay bool, opts []RequestOption) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}

	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	// A caller-supplied key is attached as-is; otherwise mutating methods
	// get a generated one.
	idempotencyKey := ro.idempotencyKey
	if idempotencyKey == "" && mutating(method) {
		idempotencyKey = c.newIdempotencyKey()
	}

	res, err := c.doWithRetry(ctx, method, u, body, idempotencyKey, ro.skipAuth)
	if err != nil {
		return res, err
	}
	if res.StatusCode != nethttp.StatusPaymentRequired || !pay {
		return res, nil
	}
	return c.payAndRetry(ctx, method, u, body, idempotencyKey, ro.skipAuth, res)
}

// payAndRetry settles a 402 challenge and replays the request once with the
// signed payment attached.
func (c *Client) payAndRetry(ctx context.Context, method string, u *url.URL, body []byte, idempotencyKey string, skipAuth bool, challenge *Response) (*Response, error) {
	// A read-only signer can browse but never pay. This is fatal, not
	// retryable: no amount of waiting produces a key.
	if !c.signer.CanSign() {
		return nil, xache.NewProtocolError(xache.ErrCodeSigningUnavailable,
			"payment required but signer is read-only", xache.ErrSigningUnavailable).
			WithDetails("url", u.String())
	}

	ch, err := ParseChallenge(challenge.Body)
	if err != nil {
		return nil, err
	}

	start := c.now()
	c.emit(c.onPaymentAttempt, xache.PaymentEvent{
		Type:        xache.PaymentEventAttempt,
		Timestamp:   start,
		URL:         u.String(),
		ChallengeID: ch.ChallengeID,
		Amount:      ch.Amount,
		Asset:       ch.Asset,
		Network:     ch.Network,
		Recipient:   ch.PayTo,
	})

	envelope, err := c.payments.Handle(ctx, ch)
	if err != nil {
		c.emitFailure(u, ch, err, start)
		return nil, err
	}
	headerValue, err := encoding.EncodeEnvelope(*envelope)
	if err != nil {
		c.emitFailure(u, ch, err, start)
		return nil, err
	}

	// The challenge id replaces the idempotency key on the paid retry so the
	// server treats both attempts as one logical operation.
	retryKey := idempotencyKey
	if ch.ChallengeID != "" {
		retryKey = ch.ChallengeID
	}

	c.log.Info("retrying with payment", map[string]any{
		"url":       u.String(),
		"network":   ch.Network,
		"amount":    ch.Amount,
		"challenge": ch.ChallengeID,
	})

	// Exactly one paid attempt. A second 402 means the payment was rejected;
	// looping would sign a fresh authorization for every refusal.
	res, err := c.doOnce(ctx, method, u, body, retryKey, skipAuth, xache.PaymentHeaderName(ch.Version), headerValue)
	if err != nil {
		c.emitFailure(u, ch, err, start)
		return nil, err
	}
	res.Paid = true
	res.Settlement = c.settlement(res.Header, ch.Version)

	if res.StatusCode == nethttp.StatusPaymentRequired {
		err := xache.NewProtocolError(xache.ErrCodePaymentFailed,
			"server rejected the signed payment", xache.ErrPaymentFailed).
			WithDetails("challenge", ch.ChallengeID)
		c.emitFailure(u, ch, err, start)
		return res, err
	}

	if res.Settlement != nil && res.Settlement.Success {
		c.emit(c.onPaymentSuccess, xache.PaymentEvent{
			Type:        xache.PaymentEventSuccess,
			Timestamp:   c.now(),
			URL:         u.String(),
			ChallengeID: ch.ChallengeID,
			Amount:      ch.Amount,
			Asset:       ch.Asset,
			Network:     ch.Network,
			Recipient:   ch.PayTo,
			Transaction: res.Settlement.Transaction,
			Payer:       res.Settlement.Payer,
			Duration:    c.now().Sub(start),
		})
	}
	return res, nil
}

// transientStatusError carries a retryable HTTP response through the retry
// loop so the last response survives exhaustion.
type transientStatusError struct {
	res *Response
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("transient status %d", e.res.StatusCode)
}

func (c *Client) doWithRetry(ctx context.Context, method string, u *url.URL, body []byte, idempotencyKey string, skipAuth bool) (*Response, error) {
	res, err := retry.WithRetry(ctx, c.retry, retryable, func() (*Response, error) {
		res, err := c.doOnce(ctx, method, u, body, idempotencyKey, skipAuth, "", "")
		if err != nil {
			return nil, err
		}
		if isTransientStatus(res.StatusCode) {
			return nil, &transientStatusError{res: res}
		}
		return res, nil
	})
	if err != nil {
		// Exhausted retries on a transient status surface as a network
		// error; the last response rides along so the caller can inspect it.
		var tse *transientStatusError
		if errors.As(err, &tse) {
			c.log.Warn("transient failures exhausted retry budget", map[string]any{
				"url":    u.String(),
				"status": tse.res.StatusCode,
			})
			return tse.res, xache.NewProtocolError(xache.ErrCodeNetworkError,
				fmt.Sprintf("transient failures exhausted %d attempts", c.retry.MaxAttempts),
				xache.ErrNetworkFailure).
				WithDetails("status", strconv.Itoa(tse.res.StatusCode)).
				WithDetails("url", u.String())
		}
		return nil, err
	}
	return res, nil
}

// doOnce sends one signed request. The signature timestamp is fresh per
// attempt so retries never replay a stale signature.
func (c *Client) doOnce(ctx context.Context, method string, u *url.URL, body []byte, idempotencyKey string, skipAuth bool, paymentHeaderName, paymentHeaderValue string) (*Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}
	if paymentHeaderName != "" {
		req.Header.Set(paymentHeaderName, paymentHeaderValue)
	}
	if !skipAuth {
		if err := c.signRequest(ctx, req, method, requestPath(u), body); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", xache.ErrNetworkFailure, method, u.String(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", xache.ErrNetworkFailure, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// signRequest attaches the identity and signature headers. A read-only
// signer identifies itself but sends no signature.
func (c *Client) signRequest(ctx context.Context, req *nethttp.Request, method, path string, body []byte) error {
	req.Header.Set(auth.HeaderDID, c.signer.DID().String())
	if !c.signer.CanSign() {
		return nil
	}

	ts := c.now().UnixMilli()
	// A timestamp outside the replay window would be rejected on arrival,
	// so a skewed local clock fails fast instead of signing garbage.
	if !auth.ValidateTimestamp(ts) {
		return xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"request timestamp is outside the allowed clock skew", xache.ErrStaleTimestamp).
			WithDetails("timestamp", strconv.FormatInt(ts, 10))
	}
	message := auth.BuildSignatureMessage(method, path, body, ts, c.signer.DID().String())
	sig, err := c.signer.SignAuthMessage(ctx, message)
	if err != nil {
		return err
	}
	req.Header.Set(auth.HeaderSignature, sig)
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	return nil
}

// settlement decodes the payment response header, checking the announced
// version's header name first and the other generation as a fallback.
// Settlement info is advisory: a malformed header is logged, never fatal.
func (c *Client) settlement(header nethttp.Header, version int) *xache.SettlementResponse {
	value := header.Get(xache.PaymentResponseHeaderName(version))
	if value == "" {
		for _, name := range []string{xache.PaymentResponseHeaderV2, xache.PaymentResponseHeaderV1} {
			if value = header.Get(name); value != "" {
				break
			}
		}
	}
	if value == "" {
		return nil
	}
	settlement, err := encoding.DecodeSettlement(value)
	if err != nil {
		c.log.Warn("dropping malformed settlement header", map[string]any{"error": err.Error()})
		return nil
	}
	return &settlement
}

func (c *Client) newIdempotencyKey() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10) + "-" + uuid.NewString()
}

func (c *Client) emit(cb xache.PaymentCallback, event xache.PaymentEvent) {
	if cb != nil {
		cb(event)
	}
}

func (c *Client) emitFailure(u *url.URL, ch xache.PaymentChallenge, err error, start time.Time) {
	c.emit(c.onPaymentFailure, xache.PaymentEvent{
		Type:        xache.PaymentEventFailure,
		Timestamp:   c.now(),
		URL:         u.String(),
		ChallengeID: ch.ChallengeID,
		Amount:      ch.Amount,
		Asset:       ch.Asset,
		Network:     ch.Network,
		Recipient:   ch.PayTo,
		Error:       err,
		Duration:    c.now().Sub(start),
	})
}

// requestPath returns the path plus query exactly as signed: the server
// verifies against the full request target, query string included.
func requestPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

func mutating(method string) bool {
	switch method {
	case nethttp.MethodPost, nethttp.MethodPut, nethttp.MethodPatch, nethttp.MethodDelete:
		return true
	}
	return false
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == nethttp.StatusRequestTimeout || code == nethttp.StatusTooManyRequests
}

func retryable(err error) bool {
	var tse *transientStatusError
	return errors.As(err, &tse) || xache.IsRetryable(err)
}
