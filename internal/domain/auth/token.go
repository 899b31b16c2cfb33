// Package auth holds the token hashing shared by request authentication and
// account seeding.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashToken returns the hex-encoded HMAC-SHA256 of token keyed by pepper.
// Only hashes are stored, so a leaked users table does not leak tokens.
func HashToken(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// TokenFromHeader extracts the token from an Authorization header value.
// Both a bare token and the "Bearer <token>" form are accepted.
func TokenFromHeader(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		v = strings.TrimSpace(v[7:])
	}
	return v
}
