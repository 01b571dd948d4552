// Package cryptoutil implements the primitive cryptographic operations
// shared by the enclave RPC transport, the attestation verifier, and the
// assistant envelope encryption: HMAC request signing, Ed25519 attestation
// signatures, X25519 key agreement with a directional KDF feeding
// ChaCha20-Poly1305, and token hashing.
package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// SignHMAC computes the lowercase-hex HMAC-SHA256 signature over the
// RPC request fields, matching the enclave's wire contract exactly:
// method, path, timestamp, nonce, and body, each separated by a single
// zero byte so that no combination of field values can produce the same
// MAC input as another combination.
func SignHMAC(sharedSecret, method, path string, timestampUnix int64, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(sharedSecret))
	mac.Write([]byte(method))
	mac.Write([]byte{0})
	mac.Write([]byte(path))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(timestampUnix, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	mac.Write([]byte{0})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEqual compares two strings in constant time with respect to
// their contents. It still short-circuits on length, which does not leak
// anything secret since signature and nonce lengths are public wire
// constants.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
