package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSignatureMessage(t *testing.T) {
	const testDID = "did:agent:evm:0x1234567890abcdef1234567890abcdef12345678"

	t.Run("layout", func(t *testing.T) {
		msg := BuildSignatureMessage("post", "/v1/memories?scope=private", []byte(`{"k":"v"}`), 1700000000000, testDID)
		lines := strings.Split(msg, "\n")
		assert.Len(t, lines, 5)
		assert.Equal(t, "POST", lines[0])
		assert.Equal(t, "/v1/memories?scope=private", lines[1])

		sum := sha256.Sum256([]byte(`{"k":"v"}`))
		assert.Equal(t, hex.EncodeToString(sum[:]), lines[2])
		assert.Equal(t, "1700000000000", lines[3])
		assert.Equal(t, testDID, lines[4])
	})

	t.Run("empty body hashes empty string", func(t *testing.T) {
		withNil := BuildSignatureMessage("GET", "/v1/memories", nil, 1, testDID)
		withEmpty := BuildSignatureMessage("GET", "/v1/memories", []byte{}, 1, testDID)
		assert.Equal(t, withNil, withEmpty)

		sum := sha256.Sum256(nil)
		assert.Contains(t, withNil, hex.EncodeToString(sum[:]))
	})

	t.Run("query string changes the message", func(t *testing.T) {
		a := BuildSignatureMessage("GET", "/v1/search?q=x", nil, 1, testDID)
		b := BuildSignatureMessage("GET", "/v1/search?q=y", nil, 1, testDID)
		assert.NotEqual(t, a, b)
	})
}

func TestValidateTimestampAt(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	window := MaxClockSkew.Milliseconds()

	tests := []struct {
		name string
		ts   int64
		want bool
	}{
		{"current", now.UnixMilli(), true},
		{"exactly at past edge", now.UnixMilli() - window, true},
		{"exactly at future edge", now.UnixMilli() + window, true},
		{"one past the edge", now.UnixMilli() - window - 1, false},
		{"one ahead of the edge", now.UnixMilli() + window + 1, false},
		{"zero", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateTimestampAt(tt.ts, now))
		})
	}
}

func TestMaxClockSkewIsFiveMinutes(t *testing.T) {
	assert.EqualValues(t, 300_000, MaxClockSkew.Milliseconds())
}
