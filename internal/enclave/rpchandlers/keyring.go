// Package rpchandlers implements the concrete enclave.Handlers: the only
// code in this repo that holds a Google client, an LLM gateway, and the
// session-state keyring at the same time. It lives outside internal/enclave
// itself because internal/enclave/google and internal/orchestrator both
// import internal/enclave, and a concrete Handlers needs all three.
package rpchandlers

import "crypto/sha256"

// DerivedKeyring derives session-state keys deterministically from the
// data-encryption key and a key id, rather than storing a separate table
// of symmetric keys. Any key id derives a valid key, so a past
// CurrentKeyID rotated out still opens sessions sealed under it; only
// CurrentKeyID's value changes on rotation.
type DerivedKeyring struct {
	dataEncryptionKey string
	currentKeyID      string
}

// NewDerivedKeyring builds a keyring whose current key id encodes the KMS
// key version in effect, so a rotation of KMSKeyVersion automatically
// rotates the session-state key alongside the connector-token key.
func NewDerivedKeyring(dataEncryptionKey, currentKeyID string) *DerivedKeyring {
	return &DerivedKeyring{dataEncryptionKey: dataEncryptionKey, currentKeyID: currentKeyID}
}

// CurrentKeyID returns the keyring's active key id.
func (k *DerivedKeyring) CurrentKeyID() string {
	return k.currentKeyID
}

// Key derives the symmetric key for keyID: SHA-256(dataEncryptionKey ||
// "|" || "session-state" || "|" || keyID). Always returns ok=true — an
// empty dataEncryptionKey is a configuration error caught at startup, not
// here.
func (k *DerivedKeyring) Key(keyID string) ([32]byte, bool) {
	h := sha256.New()
	h.Write([]byte(k.dataEncryptionKey))
	h.Write([]byte("|session-state|"))
	h.Write([]byte(keyID))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, true
}
