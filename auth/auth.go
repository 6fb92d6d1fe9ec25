// Package auth builds the canonical per-request signature message and
// enforces the replay timestamp window.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Request authentication headers.
const (
	// HeaderDID carries the caller's DID.
	HeaderDID = "X-Agent-DID"

	// HeaderSignature carries the request signature: lowercase hex for EVM
	// callers, base58 for Solana callers.
	HeaderSignature = "X-Sig"

	// HeaderTimestamp carries the request timestamp in unix milliseconds.
	HeaderTimestamp = "X-Ts"
)

// MaxClockSkew bounds how far a request timestamp may drift from the
// verifier's clock. Both sides enforce it.
const MaxClockSkew = 5 * time.Minute

// BuildSignatureMessage constructs the canonical message that gets signed
// for request authentication:
//
//	METHOD\nPATH\nHEX(SHA256(body))\nTIMESTAMP\nDID
//
// path must include the query string; a signature that does not cover query
// parameters would let them be tampered with in flight. body is nil or empty
// for bodyless methods, which hashes the empty string.
func BuildSignatureMessage(method, path string, body []byte, timestampMs int64, did string) string {
	sum := sha256.Sum256(body)
	parts := []string{
		strings.ToUpper(method),
		path,
		hex.EncodeToString(sum[:]),
		strconv.FormatInt(timestampMs, 10),
		did,
	}
	return strings.Join(parts, "\n")
}

// ValidateTimestamp reports whether a unix-millisecond timestamp is within
// MaxClockSkew of the current time.
func ValidateTimestamp(timestampMs int64) bool {
	return ValidateTimestampAt(timestampMs, time.Now())
}

// ValidateTimestampAt is ValidateTimestamp against an explicit clock. The
// window is inclusive: a timestamp exactly MaxClockSkew away validates.
func ValidateTimestampAt(timestampMs int64, now time.Time) bool {
	diff := now.UnixMilli() - timestampMs
	if diff < 0 {
		diff = -diff
	}
	return diff <= MaxClockSkew.Milliseconds()
}
