// Package encoding handles the base64+JSON wire encoding of payment
// envelopes and settlement responses carried in HTTP headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/xacheai/xache-go"
)

// EncodeEnvelope converts a PaymentEnvelope to the base64-encoded JSON
// string carried in the payment request header.
func EncodeEnvelope(envelope xache.PaymentEnvelope) (string, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeEnvelope converts a base64-encoded JSON string back into a
// PaymentEnvelope. The inner payload is resolved to ExactEVMPayload or
// SVMPayload from the payload's network field.
func DecodeEnvelope(encoded string) (xache.PaymentEnvelope, error) {
	var envelope xache.PaymentEnvelope

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return envelope, fmt.Errorf("%w: invalid base64: %v", xache.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, fmt.Errorf("%w: invalid payment JSON: %v", xache.ErrMalformedHeader, err)
	}

	payload, err := resolvePayload(envelope.PaymentPayload)
	if err != nil {
		return envelope, err
	}
	envelope.PaymentPayload.Payload = payload
	return envelope, nil
}

// resolvePayload re-types the generic payload map into the concrete
// chain-specific struct.
func resolvePayload(p xache.PaymentPayload) (interface{}, error) {
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to re-marshal payload: %w", err)
	}

	if xache.IsSolanaNetwork(p.Network) {
		var svm xache.SVMPayload
		if err := json.Unmarshal(raw, &svm); err != nil {
			return nil, fmt.Errorf("%w: invalid Solana payload: %v", xache.ErrMalformedHeader, err)
		}
		return svm, nil
	}

	var evm xache.ExactEVMPayload
	if err := json.Unmarshal(raw, &evm); err != nil {
		return nil, fmt.Errorf("%w: invalid EVM payload: %v", xache.ErrMalformedHeader, err)
	}
	return evm, nil
}

// EncodeSettlement converts a SettlementResponse to base64-encoded JSON for
// the payment response header.
func EncodeSettlement(settlement xache.SettlementResponse) (string, error) {
	raw, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSettlement converts a base64-encoded JSON string to a
// SettlementResponse. Settlement headers are advisory, so callers typically
// log and drop the error instead of failing the request.
func DecodeSettlement(encoded string) (xache.SettlementResponse, error) {
	var settlement xache.SettlementResponse

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("%w: invalid base64: %v", xache.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(raw, &settlement); err != nil {
		return settlement, fmt.Errorf("%w: invalid settlement JSON: %v", xache.ErrMalformedHeader, err)
	}
	return settlement, nil
}
