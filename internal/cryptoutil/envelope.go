package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// EnvelopeAlgorithm is the wire value for the assistant request/response
// envelope's algorithm field.
const EnvelopeAlgorithm = "x25519-chacha20poly1305"

// EnvelopeDirection selects which of the two directional keys the shared
// secret derives. "request" and "response" derive distinct keys so a
// captured response envelope can never be replayed as a request, and vice
// versa.
type EnvelopeDirection string

const (
	DirectionRequest  EnvelopeDirection = "request"
	DirectionResponse EnvelopeDirection = "response"
)

// EnvelopeKeyPair is an X25519 static keypair. The enclave holds one
// long-lived pair per KMS key version; the client supplies a fresh
// ephemeral public key with every request.
type EnvelopeKeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// GenerateEnvelopeKeyPair generates a fresh X25519 keypair.
func GenerateEnvelopeKeyPair() (*EnvelopeKeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("generating x25519 private key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving x25519 public key: %w", err)
	}
	var pubArr [32]byte
	copy(pubArr[:], pub)
	return &EnvelopeKeyPair{PublicKey: pubArr, PrivateKey: priv}, nil
}

// EnvelopeKeyPairFromPrivateKey rebuilds a keypair from a stored 32-byte
// X25519 private key, re-deriving the public key rather than persisting
// it separately.
func EnvelopeKeyPairFromPrivateKey(priv [32]byte) (*EnvelopeKeyPair, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving x25519 public key: %w", err)
	}
	var pubArr [32]byte
	copy(pubArr[:], pub)
	return &EnvelopeKeyPair{PublicKey: pubArr, PrivateKey: priv}, nil
}

// sharedSecret performs the X25519 Diffie-Hellman agreement between a
// local private key and a remote public key.
func sharedSecret(localPrivate, remotePublic [32]byte) ([]byte, error) {
	secret, err := curve25519.X25519(localPrivate[:], remotePublic[:])
	if err != nil {
		return nil, fmt.Errorf("x25519 key agreement: %w", err)
	}
	return secret, nil
}

// DeriveEnvelopeKey computes the directional symmetric key from a raw
// X25519 shared secret: SHA-256(shared || "|" || request_id || "|" ||
// direction). Distinct derived keys per direction prevent a ciphertext
// sealed in one direction from being accepted by the other.
func DeriveEnvelopeKey(shared []byte, requestID string, direction EnvelopeDirection) [32]byte {
	h := sha256.New()
	h.Write(shared)
	h.Write([]byte("|"))
	h.Write([]byte(requestID))
	h.Write([]byte("|"))
	h.Write([]byte(direction))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// EnvelopeSeal encrypts plaintext with ChaCha20-Poly1305 under key, using
// requestID as additional authenticated data so a sealed envelope cannot
// be replayed against a different request. It generates a fresh 12-byte
// nonce and returns it alongside the ciphertext.
func EnvelopeSeal(key [32]byte, requestID string, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("constructing chacha20poly1305 aead: %w", err)
	}
	nonce = make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generating envelope nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, []byte(requestID))
	return nonce, ciphertext, nil
}

// EnvelopeOpen decrypts and authenticates a ChaCha20-Poly1305 envelope.
func EnvelopeOpen(key [32]byte, requestID string, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("constructing chacha20poly1305 aead: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("envelope nonce has invalid length %d", len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(requestID))
	if err != nil {
		return nil, fmt.Errorf("opening envelope: %w", err)
	}
	return plaintext, nil
}

// SealToPeer performs the full directional seal: X25519 agreement with
// the peer's public key, key derivation for direction, then AEAD seal.
func (kp *EnvelopeKeyPair) SealToPeer(peerPublic [32]byte, requestID string, direction EnvelopeDirection, plaintext []byte) (nonce, ciphertext []byte, err error) {
	shared, err := sharedSecret(kp.PrivateKey, peerPublic)
	if err != nil {
		return nil, nil, err
	}
	key := DeriveEnvelopeKey(shared, requestID, direction)
	return EnvelopeSeal(key, requestID, plaintext)
}

// OpenFromPeer performs the full directional open: X25519 agreement with
// the peer's public key, key derivation for direction, then AEAD open.
func (kp *EnvelopeKeyPair) OpenFromPeer(peerPublic [32]byte, requestID string, direction EnvelopeDirection, nonce, ciphertext []byte) ([]byte, error) {
	shared, err := sharedSecret(kp.PrivateKey, peerPublic)
	if err != nil {
		return nil, err
	}
	key := DeriveEnvelopeKey(shared, requestID, direction)
	return EnvelopeOpen(key, requestID, nonce, ciphertext)
}
