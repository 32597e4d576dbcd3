// Package signature authenticates allocator webhooks with HMAC-SHA256 over the
// raw request body.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const prefix = "sha256="

// Sign returns the lowercase hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the HMAC of the unparsed body in constant
// time. An empty secret or signature never verifies.
func Verify(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}

	sig := strings.ToLower(strings.TrimSpace(signature))
	sig = strings.TrimPrefix(sig, prefix)
	if sig == "" {
		return false
	}

	expected := Sign(secret, body)
	return hmac.Equal([]byte(sig), []byte(expected))
}
