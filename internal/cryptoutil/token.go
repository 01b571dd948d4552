package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns the lowercase-hex SHA-256 digest of a bearer token or
// refresh token. Only the hash is ever persisted; the raw token is shown
// to the client exactly once.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokensEqual compares a raw token against a stored hash in constant
// time by hashing the raw token and comparing digests, never the raw
// token against stored plaintext.
func TokensEqual(rawToken, storedHash string) bool {
	computed := HashToken(rawToken)
	if len(computed) != len(storedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
