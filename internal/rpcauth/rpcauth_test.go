package rpcauth

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		SharedSecret:    "a-sufficiently-long-shared-secret",
		ContractVersion: "1.0.0",
		MaxClockSkew:    30 * time.Second,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	cfg := testConfig()
	now := time.Unix(1700000000, 0)
	body := []byte(`{"hello":"world"}`)

	signed, err := Sign(cfg, "POST", "/v1/calendar/events", body, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(cfg, signed, "POST", "/v1/calendar/events", body, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	cfg := testConfig()
	now := time.Unix(1700000000, 0)

	signed, err := Sign(cfg, "POST", "/v1/calendar/events", []byte("original"), now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(cfg, signed, "POST", "/v1/calendar/events", []byte("tampered"), now); err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	cfg := testConfig()
	now := time.Unix(1700000000, 0)
	signed, _ := Sign(cfg, "GET", "/v1/ping", nil, now)

	later := now.Add(cfg.MaxClockSkew + time.Second)
	if err := Verify(cfg, signed, "GET", "/v1/ping", nil, later); err == nil {
		t.Fatal("expected stale timestamp to fail verification")
	}
}

func TestVerifyAllowsWithinSkewWindow(t *testing.T) {
	cfg := testConfig()
	now := time.Unix(1700000000, 0)
	signed, _ := Sign(cfg, "GET", "/v1/ping", nil, now)

	withinWindow := now.Add(cfg.MaxClockSkew - time.Second)
	if err := Verify(cfg, signed, "GET", "/v1/ping", nil, withinWindow); err != nil {
		t.Fatalf("expected timestamp within skew window to pass, got %v", err)
	}
}

func TestVerifyRejectsContractVersionMismatch(t *testing.T) {
	cfg := testConfig()
	now := time.Unix(1700000000, 0)
	signed, _ := Sign(cfg, "GET", "/v1/ping", nil, now)
	signed.ContractVersion = "2.0.0"

	if err := Verify(cfg, signed, "GET", "/v1/ping", nil, now); err == nil {
		t.Fatal("expected contract version mismatch to fail verification")
	}
}

func TestInProcessNonceCacheRejectsReplay(t *testing.T) {
	cache := NewInProcessNonceCache()
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Minute)
	if err := cache.CheckAndRecord(ctx, "nonce-1", expiresAt); err != nil {
		t.Fatalf("first use should succeed: %v", err)
	}
	if err := cache.CheckAndRecord(ctx, "nonce-1", expiresAt); err != ErrReplayDetected {
		t.Fatalf("second use should be rejected as replay, got %v", err)
	}
}

func TestInProcessNonceCachePrunesExpired(t *testing.T) {
	cache := NewInProcessNonceCache()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	if err := cache.CheckAndRecord(ctx, "nonce-expired", past); err != nil {
		t.Fatalf("recording with past expiry should still succeed once: %v", err)
	}

	if err := cache.CheckAndRecord(ctx, "nonce-fresh", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("recording fresh nonce should succeed: %v", err)
	}

	if cache.Len() != 1 {
		t.Errorf("expected pruning to leave only the fresh nonce, got %d entries", cache.Len())
	}
}

func TestParseHeadersRequiresAllFields(t *testing.T) {
	h := http.Header{}
	req, err := ParseHeaders(h)
	if err == nil || req != nil {
		t.Fatal("expected missing headers to fail parsing")
	}
}

func TestSignAndParseHeadersRoundTrip(t *testing.T) {
	cfg := testConfig()
	now := time.Unix(1700000000, 0)
	signed, err := Sign(cfg, "POST", "/v1/gmail/search", []byte("{}"), now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	h := http.Header{}
	signed.ApplyHeaders(h)

	parsed, err := ParseHeaders(h)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	if parsed.Signature != signed.Signature || parsed.Nonce != signed.Nonce || parsed.Timestamp != signed.Timestamp {
		t.Fatalf("parsed headers do not match signed request: %+v vs %+v", parsed, signed)
	}
}
