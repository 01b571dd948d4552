package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredhq/backend/internal/cryptoutil"
	"github.com/alfredhq/backend/internal/enclave"
)

// SessionStateTTL is how long an encrypted session memory envelope is
// retained before the host is allowed to treat it as expired.
const SessionStateTTL = 6 * time.Hour

// SessionKeyring resolves a session-state symmetric key by id, so keys
// can be rotated without invalidating every in-flight session in one step.
type SessionKeyring interface {
	Key(keyID string) ([32]byte, bool)
	CurrentKeyID() string
}

// SealedEnvelope is the nonce+ciphertext pair the host stores or
// transmits opaquely.
type SealedEnvelope struct {
	Nonce      []byte
	Ciphertext []byte
}

// SealSessionState encrypts a SessionMemory under the keyring's current
// key. The host stores the result opaquely; only the enclave ever reads it.
func SealSessionState(ring SessionKeyring, memory *SessionMemory, requestID string) (sealed SealedEnvelope, keyID string, err error) {
	keyID = ring.CurrentKeyID()
	key, ok := ring.Key(keyID)
	if !ok {
		return SealedEnvelope{}, "", fmt.Errorf("session keyring: unknown current key id %q", keyID)
	}

	plaintext, err := json.Marshal(memory)
	if err != nil {
		return SealedEnvelope{}, "", fmt.Errorf("marshaling session memory: %w", err)
	}

	nonce, ciphertext, err := cryptoutil.EnvelopeSeal(key, requestID, plaintext)
	if err != nil {
		return SealedEnvelope{}, "", fmt.Errorf("sealing session state: %w", err)
	}
	return SealedEnvelope{Nonce: nonce, Ciphertext: ciphertext}, keyID, nil
}

// OpenSessionState decrypts a previously sealed session state envelope.
func OpenSessionState(ring SessionKeyring, sealed SealedEnvelope, keyID, requestID string) (*SessionMemory, error) {
	key, ok := ring.Key(keyID)
	if !ok {
		return nil, fmt.Errorf("session keyring: unknown key id %q", keyID)
	}

	plaintext, err := cryptoutil.EnvelopeOpen(key, requestID, sealed.Nonce, sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("opening session state: %w", err)
	}

	var memory SessionMemory
	if err := json.Unmarshal(plaintext, &memory); err != nil {
		return nil, fmt.Errorf("unmarshaling session memory: %w", err)
	}
	if err := ValidateMemoryVersion(&memory); err != nil {
		return nil, err
	}
	return &memory, nil
}

// AssistantQueryPlaintext is the decrypted body of a client's request
// envelope: the natural-language query plus the session id the client
// wants its memory tracked under, if any.
type AssistantQueryPlaintext struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// OpenRequest decrypts the client's request envelope, mirroring
// SealResponse's shape for the opposite direction: X25519 agreement with
// the client's ephemeral public key, DirectionRequest key derivation,
// then AEAD open.
func OpenRequest(enclaveKeys *cryptoutil.EnvelopeKeyPair, clientEphemeralPubKey [32]byte, requestID string, nonce, ciphertext []byte) (*AssistantQueryPlaintext, error) {
	plaintext, err := enclaveKeys.OpenFromPeer(clientEphemeralPubKey, requestID, cryptoutil.DirectionRequest, nonce, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("opening request envelope: %w", err)
	}
	var body AssistantQueryPlaintext
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return nil, fmt.Errorf("unmarshaling request envelope: %w", err)
	}
	return &body, nil
}

// SealResponse encrypts an AssistantResponse to the client's ephemeral
// X25519 public key, binding request_id as AAD/KDF input so the envelope
// can't be replayed against a different request.
func SealResponse(enclaveKeys *cryptoutil.EnvelopeKeyPair, clientEphemeralPubKey [32]byte, requestID string, resp *enclave.AssistantResponse) (SealedEnvelope, error) {
	plaintext, err := json.Marshal(resp)
	if err != nil {
		return SealedEnvelope{}, fmt.Errorf("marshaling assistant response: %w", err)
	}
	nonce, ciphertext, err := enclaveKeys.SealToPeer(clientEphemeralPubKey, requestID, cryptoutil.DirectionResponse, plaintext)
	if err != nil {
		return SealedEnvelope{}, err
	}
	return SealedEnvelope{Nonce: nonce, Ciphertext: ciphertext}, nil
}
