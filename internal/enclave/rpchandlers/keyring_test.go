package rpchandlers

import "testing"

func TestDerivedKeyring_DeterministicPerKeyID(t *testing.T) {
	ring := NewDerivedKeyring("secret-dek", "kms-v1")

	k1, ok := ring.Key("kms-v1")
	if !ok {
		t.Fatal("expected ok=true")
	}
	k2, ok := ring.Key("kms-v1")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if k1 != k2 {
		t.Error("deriving the same key id twice should yield the same key")
	}

	k3, ok := ring.Key("kms-v2")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if k1 == k3 {
		t.Error("deriving a different key id should yield a different key")
	}
}

func TestDerivedKeyring_RotatedKeyIDStillOpens(t *testing.T) {
	ring := NewDerivedKeyring("secret-dek", "kms-v2")

	if got := ring.CurrentKeyID(); got != "kms-v2" {
		t.Errorf("CurrentKeyID() = %q, want %q", got, "kms-v2")
	}

	oldKey, ok := ring.Key("kms-v1")
	if !ok {
		t.Fatal("a past key id should still derive a usable key after rotation")
	}

	fresh := NewDerivedKeyring("secret-dek", "kms-v1")
	freshKey, ok := fresh.Key("kms-v1")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if oldKey != freshKey {
		t.Error("the same data encryption key + key id must always derive the same session key")
	}
}

func TestDerivedKeyring_DifferentDataEncryptionKeyDiverges(t *testing.T) {
	a := NewDerivedKeyring("secret-a", "kms-v1")
	b := NewDerivedKeyring("secret-b", "kms-v1")

	ka, _ := a.Key("kms-v1")
	kb, _ := b.Key("kms-v1")
	if ka == kb {
		t.Error("different data encryption keys must derive different session keys")
	}
}
