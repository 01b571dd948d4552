package cryptoutil

import (
	"crypto/ed25519"
	"fmt"
)

// Ed25519PublicKeySize and Ed25519SignatureSize match the wire sizes the
// attestation evidence payload is base64-decoded into.
const (
	Ed25519PublicKeySize = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
)

// VerifyEd25519 verifies a signature over payload using pubKey. It returns
// an error (rather than a bare bool) so callers can log the specific
// reason a signature was rejected, per the attestation sub-reason logging
// the transport requires.
func VerifyEd25519(pubKey, payload, signature []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("attestation public key has invalid length %d", len(pubKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("attestation signature has invalid length %d", len(signature))
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), payload, signature) {
		return fmt.Errorf("attestation signature verification failed")
	}
	return nil
}

// SignEd25519 signs payload with a private key. Used by the dev-shim
// enclave runtime to produce attestation evidence locally.
func SignEd25519(privKey, payload []byte) ([]byte, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key has invalid length %d", len(privKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privKey), payload), nil
}

// GenerateEd25519Keypair generates a fresh attestation signing keypair,
// used by the dev-shim enclave runtime and by tests.
func GenerateEd25519Keypair() (pub, priv []byte, err error) {
	p, s, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ed25519 keypair: %w", err)
	}
	return []byte(p), []byte(s), nil
}
