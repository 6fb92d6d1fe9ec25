package http

import (
	"encoding/json"
	"fmt"

	"github.com/xacheai/xache-go"
)

// wireRequirement is one entry of the 402 body's accepts array.
type wireRequirement struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Asset             string                 `json:"asset"`
	PayTo             string                 `json:"payTo"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	Extra             map[string]interface{} `json:"extra"`
}

// wireChallenge covers both challenge generations. Version 1 servers put
// the challenge id at the top level; version 2 servers nest it (and the
// Solana fee payer) under the requirement's extra map.
type wireChallenge struct {
	X402Version int               `json:"x402Version"`
	ChallengeID string            `json:"challengeId"`
	Error       string            `json:"error"`
	Accepts     []wireRequirement `json:"accepts"`
}

// ParseChallenge decodes a 402 response body into a PaymentChallenge.
func ParseChallenge(body []byte) (xache.PaymentChallenge, error) {
	var wire wireChallenge
	if err := json.Unmarshal(body, &wire); err != nil {
		return xache.PaymentChallenge{}, fmt.Errorf("%w: unparseable 402 body: %v", xache.ErrInvalidChallenge, err)
	}
	if len(wire.Accepts) == 0 {
		return xache.PaymentChallenge{}, fmt.Errorf("%w: no accepted payment methods", xache.ErrInvalidChallenge)
	}

	// Only the exact scheme is supported; take the first such requirement.
	var req *wireRequirement
	for i := range wire.Accepts {
		if wire.Accepts[i].Scheme == xache.Scheme {
			req = &wire.Accepts[i]
			break
		}
	}
	if req == nil {
		return xache.PaymentChallenge{}, fmt.Errorf("%w: no %q scheme offered", xache.ErrInvalidChallenge, xache.Scheme)
	}

	if req.Network == "" || req.MaxAmountRequired == "" || req.PayTo == "" {
		return xache.PaymentChallenge{}, fmt.Errorf("%w: requirement is missing network, amount, or payTo", xache.ErrInvalidChallenge)
	}

	challengeID := wire.ChallengeID
	if challengeID == "" {
		challengeID = extraString(req.Extra, "challengeId")
	}
	if challengeID == "" {
		return xache.PaymentChallenge{}, fmt.Errorf("%w: missing challenge id", xache.ErrInvalidChallenge)
	}

	version := wire.X402Version
	if version == 0 {
		version = xache.X402Version1
	}
	if version > xache.X402Version2 {
		return xache.PaymentChallenge{}, fmt.Errorf("%w: x402 version %d", xache.ErrUnsupportedVersion, version)
	}

	return xache.PaymentChallenge{
		ChallengeID: challengeID,
		Amount:      req.MaxAmountRequired,
		Network:     req.Network,
		PayTo:       req.PayTo,
		Asset:       req.Asset,
		Description: req.Description,
		Resource:    req.Resource,
		FeePayer:    extraString(req.Extra, "feePayer"),
		Version:     version,
	}, nil
}

func extraString(extra map[string]interface{}, key string) string {
	if extra == nil {
		return ""
	}
	if v, ok := extra[key].(string); ok {
		return v
	}
	return ""
}
