package cryptoutil

import "testing"

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateEd25519Keypair()
	if err != nil {
		t.Fatalf("generating keypair: %v", err)
	}

	payload := []byte("attestation evidence payload")
	sig, err := SignEd25519(priv, payload)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if err := VerifyEd25519(pub, payload, sig); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}
}

func TestEd25519RejectsTamperedPayload(t *testing.T) {
	pub, priv, _ := GenerateEd25519Keypair()
	sig, _ := SignEd25519(priv, []byte("original"))

	if err := VerifyEd25519(pub, []byte("tampered"), sig); err == nil {
		t.Fatal("expected verification of tampered payload to fail")
	}
}

func TestEd25519RejectsWrongKeyLength(t *testing.T) {
	if err := VerifyEd25519([]byte("too-short"), []byte("payload"), make([]byte, Ed25519SignatureSize)); err == nil {
		t.Fatal("expected invalid public key length to fail")
	}
}
