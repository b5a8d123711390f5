// Package auth checks API bearer tokens against the configured secret.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// DigestPrefix marks a configured secret that is already a SHA-256 digest.
const DigestPrefix = "sha256:"

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Verifier matches presented tokens against one stored digest.
type Verifier struct {
	digest string
}

// NewVerifier accepts either a plain token or "sha256:<hex>" of one, so the
// plain secret never has to be stored in the server configuration.
func NewVerifier(secret string) *Verifier {
	if d, ok := strings.CutPrefix(secret, DigestPrefix); ok {
		d = strings.ToLower(strings.TrimSpace(d))
		if b, err := hex.DecodeString(d); err == nil && len(b) == sha256.Size {
			return &Verifier{digest: d}
		}
	}
	return &Verifier{digest: HashKey(secret)}
}

// Verify reports whether token matches the stored secret.
// Digests have a fixed length, so the comparison leaks nothing about it.
func (v *Verifier) Verify(token string) bool {
	return subtle.ConstantTimeCompare([]byte(HashKey(token)), []byte(v.digest)) == 1
}
