package cryptoutil

import "testing"

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("hashing the same token twice must produce the same digest")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("different tokens must hash differently")
	}
}

func TestTokensEqual(t *testing.T) {
	hash := HashToken("my-raw-token")
	if !TokensEqual("my-raw-token", hash) {
		t.Error("expected matching token and hash to compare equal")
	}
	if TokensEqual("wrong-token", hash) {
		t.Error("expected mismatched token and hash to compare unequal")
	}
}
