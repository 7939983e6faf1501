package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserKey returns a filesystem-safe identifier for a user ID.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 hex characters of the SHA-256 of s.
// Used to reference prompt text in logs without echoing it.
func ShortHash(s string) string {
	return HashUserKey(s)[:12]
}
