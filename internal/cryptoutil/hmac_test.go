package cryptoutil

import "testing"

func TestSignHMACDeterministic(t *testing.T) {
	sig1 := SignHMAC("shared-secret", "POST", "/v1/calendar", 1700000000, "nonce-1", []byte(`{"a":1}`))
	sig2 := SignHMAC("shared-secret", "POST", "/v1/calendar", 1700000000, "nonce-1", []byte(`{"a":1}`))
	if sig1 != sig2 {
		t.Fatal("signing the same inputs twice must produce the same signature")
	}
	if len(sig1) != 64 {
		t.Fatalf("expected 64 hex chars (sha256), got %d", len(sig1))
	}
}

func TestSignHMACDiffersOnFieldBoundary(t *testing.T) {
	// "ab" + "c" must not equal "a" + "bc": the zero-byte separator
	// prevents field concatenation ambiguity.
	sigA := SignHMAC("secret", "ab", "c", 1, "n", nil)
	sigB := SignHMAC("secret", "a", "bc", 1, "n", nil)
	if sigA == sigB {
		t.Fatal("expected different signatures for different field splits of the same concatenation")
	}
}

func TestSignHMACSensitiveToEveryField(t *testing.T) {
	base := SignHMAC("secret", "POST", "/path", 1700000000, "nonce", []byte("body"))
	variants := []string{
		SignHMAC("other-secret", "POST", "/path", 1700000000, "nonce", []byte("body")),
		SignHMAC("secret", "GET", "/path", 1700000000, "nonce", []byte("body")),
		SignHMAC("secret", "POST", "/other", 1700000000, "nonce", []byte("body")),
		SignHMAC("secret", "POST", "/path", 1700000001, "nonce", []byte("body")),
		SignHMAC("secret", "POST", "/path", 1700000000, "other-nonce", []byte("body")),
		SignHMAC("secret", "POST", "/path", 1700000000, "nonce", []byte("other-body")),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d unexpectedly matched base signature", i)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Error("expected equal strings to compare equal")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Error("expected different strings to compare unequal")
	}
	if ConstantTimeEqual("abc", "abcd") {
		t.Error("expected different-length strings to compare unequal")
	}
}
