package cryptoutil

import (
	"bytes"
	"testing"
)

func TestEnvelopeSealOpenRoundTrip(t *testing.T) {
	client, err := GenerateEnvelopeKeyPair()
	if err != nil {
		t.Fatalf("generating client keypair: %v", err)
	}
	enclave, err := GenerateEnvelopeKeyPair()
	if err != nil {
		t.Fatalf("generating enclave keypair: %v", err)
	}

	requestID := "req-123"
	plaintext := []byte(`{"display_text":"hello"}`)

	nonce, ciphertext, err := enclave.SealToPeer(client.PublicKey, requestID, DirectionResponse, plaintext)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	opened, err := client.OpenFromPeer(enclave.PublicKey, requestID, DirectionResponse, nonce, ciphertext)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestEnvelopeDirectionsAreNotInterchangeable(t *testing.T) {
	client, _ := GenerateEnvelopeKeyPair()
	enclave, _ := GenerateEnvelopeKeyPair()
	requestID := "req-456"

	nonce, ciphertext, err := enclave.SealToPeer(client.PublicKey, requestID, DirectionResponse, []byte("payload"))
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	if _, err := client.OpenFromPeer(enclave.PublicKey, requestID, DirectionRequest, nonce, ciphertext); err == nil {
		t.Fatal("expected opening a response envelope as a request to fail")
	}
}

func TestEnvelopeBoundToRequestID(t *testing.T) {
	client, _ := GenerateEnvelopeKeyPair()
	enclave, _ := GenerateEnvelopeKeyPair()

	nonce, ciphertext, err := enclave.SealToPeer(client.PublicKey, "req-a", DirectionResponse, []byte("payload"))
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	if _, err := client.OpenFromPeer(enclave.PublicKey, "req-b", DirectionResponse, nonce, ciphertext); err == nil {
		t.Fatal("expected opening under a different request_id to fail authentication")
	}
}

func TestEnvelopeRejectsWrongPeerKey(t *testing.T) {
	client, _ := GenerateEnvelopeKeyPair()
	enclave, _ := GenerateEnvelopeKeyPair()
	impostor, _ := GenerateEnvelopeKeyPair()

	nonce, ciphertext, err := enclave.SealToPeer(client.PublicKey, "req-1", DirectionResponse, []byte("payload"))
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	if _, err := impostor.OpenFromPeer(enclave.PublicKey, "req-1", DirectionResponse, nonce, ciphertext); err == nil {
		t.Fatal("expected opening with the wrong private key to fail")
	}
}
