package attestation

import (
	"testing"
	"time"

	"github.com/alfredhq/backend/internal/config"
	"github.com/alfredhq/backend/internal/cryptoutil"
)

func testPolicy(pub []byte) *Policy {
	return &Policy{
		Required:                 true,
		ExpectedRuntime:          "alfred-enclave",
		AllowedMeasurements:      []string{"sha256:abc123"},
		AttestationPublicKey:     pub,
		MaxAttestationAgeSeconds: 300,
		MaxClockSkew:             30 * time.Second,
	}
}

func signedResponse(t *testing.T, priv []byte, challenge *Challenge, now time.Time) *Response {
	t.Helper()
	resp := &Response{
		ChallengeNonce:   challenge.ChallengeNonce,
		IssuedAt:         challenge.IssuedAt,
		ExpiresAt:        challenge.ExpiresAt,
		OperationPurpose: challenge.OperationPurpose,
		RequestID:        challenge.RequestID,
		Runtime:          "alfred-enclave",
		Measurement:      "sha256:abc123",
		EvidenceIssuedAt: now,
	}
	sig, err := cryptoutil.SignEd25519(priv, SigningPayload(resp))
	if err != nil {
		t.Fatalf("signing response: %v", err)
	}
	resp.Signature = sig
	return resp
}

func TestVerifyResponseSucceeds(t *testing.T) {
	pub, priv, err := cryptoutil.GenerateEd25519Keypair()
	if err != nil {
		t.Fatalf("generating keypair: %v", err)
	}
	now := time.Unix(1700000000, 0)

	challenge, err := NewChallenge("fetch_calendar", "req-1", now, time.Second*10)
	if err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}
	resp := signedResponse(t, priv, challenge, now)

	policy := testPolicy(pub)
	guard := NewReplayGuard()
	if err := VerifyResponse(policy, challenge, resp, guard, now); err != nil {
		t.Fatalf("expected verification to succeed, got %v", err)
	}
}

func TestVerifyResponseRejectsExpiredChallenge(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateEd25519Keypair()
	now := time.Unix(1700000000, 0)
	challenge, _ := NewChallenge("fetch_calendar", "req-1", now, time.Second*10)
	resp := signedResponse(t, priv, challenge, now)

	policy := testPolicy(pub)
	guard := NewReplayGuard()
	later := now.Add(time.Minute)
	if err := VerifyResponse(policy, challenge, resp, guard, later); err != ErrChallengeExpired {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestVerifyResponseRejectsTamperedPurpose(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateEd25519Keypair()
	now := time.Unix(1700000000, 0)
	challenge, _ := NewChallenge("fetch_calendar", "req-1", now, time.Second*10)
	resp := signedResponse(t, priv, challenge, now)
	resp.OperationPurpose = "revoke_connector"

	policy := testPolicy(pub)
	guard := NewReplayGuard()
	if err := VerifyResponse(policy, challenge, resp, guard, now); err != ErrPurposeOrRequestIDChanged {
		t.Fatalf("expected ErrPurposeOrRequestIDChanged, got %v", err)
	}
}

func TestVerifyResponseRejectsMeasurementNotAllowed(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateEd25519Keypair()
	now := time.Unix(1700000000, 0)
	challenge, _ := NewChallenge("fetch_calendar", "req-1", now, time.Second*10)
	resp := signedResponse(t, priv, challenge, now)
	resp.Measurement = "sha256:different"
	// re-sign so the signature still validates over the tampered payload
	sig, _ := cryptoutil.SignEd25519(priv, SigningPayload(resp))
	resp.Signature = sig

	policy := testPolicy(pub)
	guard := NewReplayGuard()
	if err := VerifyResponse(policy, challenge, resp, guard, now); err != ErrMeasurementNotAllowed {
		t.Fatalf("expected ErrMeasurementNotAllowed, got %v", err)
	}
}

func TestVerifyResponseRejectsReplayedNonce(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateEd25519Keypair()
	now := time.Unix(1700000000, 0)
	challenge, _ := NewChallenge("fetch_calendar", "req-1", now, time.Second*10)
	resp := signedResponse(t, priv, challenge, now)

	policy := testPolicy(pub)
	guard := NewReplayGuard()

	if err := VerifyResponse(policy, challenge, resp, guard, now); err != nil {
		t.Fatalf("first verification should succeed: %v", err)
	}
	if err := VerifyResponse(policy, challenge, resp, guard, now); err != ErrChallengeReplayDetected {
		t.Fatalf("expected ErrChallengeReplayDetected on second identical response, got %v", err)
	}
}

func TestHardGuardLocalEnvSkipsChecks(t *testing.T) {
	policy := &Policy{Required: false, AllowInsecureDevAttestation: true}
	if err := HardGuard(config.EnvLocal, policy, "http://localhost:8081"); err != nil {
		t.Fatalf("expected local env to skip hard guard, got %v", err)
	}
}

func TestHardGuardRejectsInsecureOutsideLocal(t *testing.T) {
	policy := &Policy{
		Required:                   true,
		AllowInsecureDevAttestation: true,
		AllowedMeasurements:        []string{"sha256:abc"},
	}
	if err := HardGuard(config.EnvProduction, policy, "https://enclave.internal"); err == nil {
		t.Fatal("expected hard guard to reject insecure dev attestation outside local")
	}
}

func TestHardGuardRejectsDevSentinelMeasurement(t *testing.T) {
	policy := &Policy{
		Required:            true,
		AllowedMeasurements: []string{DevLocalEnclaveSentinel},
	}
	if err := HardGuard(config.EnvStaging, policy, "https://enclave.internal"); err == nil {
		t.Fatal("expected hard guard to reject dev-local-enclave sentinel outside local")
	}
}

func TestHardGuardRejectsNonHTTPSNonLoopback(t *testing.T) {
	policy := &Policy{
		Required:            true,
		AllowedMeasurements: []string{"sha256:abc"},
	}
	if err := HardGuard(config.EnvProduction, policy, "http://enclave.internal"); err == nil {
		t.Fatal("expected hard guard to reject non-https non-loopback base URL")
	}
}

func TestHardGuardAllowsHTTPLoopback(t *testing.T) {
	policy := &Policy{
		Required:            true,
		AllowedMeasurements: []string{"sha256:abc"},
	}
	if err := HardGuard(config.EnvStaging, policy, "http://127.0.0.1:8081"); err != nil {
		t.Fatalf("expected loopback http to be allowed, got %v", err)
	}
}

func TestKMSBindingPolicyMatchesExactly(t *testing.T) {
	policy := KMSBindingPolicy{KeyID: "alfred-primary", KeyVersion: 2}
	matches, needsAdoption := policy.CheckBinding(ConnectorKeyBinding{KeyID: "alfred-primary", KeyVersion: 2})
	if !matches || needsAdoption {
		t.Fatalf("expected exact match, got matches=%v needsAdoption=%v", matches, needsAdoption)
	}
}

func TestKMSBindingPolicyTriggersLegacyAdoption(t *testing.T) {
	policy := KMSBindingPolicy{KeyID: "alfred-primary", KeyVersion: 2}
	matches, needsAdoption := policy.CheckBinding(ConnectorKeyBinding{KeyID: LegacyConnectorKeyID, KeyVersion: 0})
	if matches || !needsAdoption {
		t.Fatalf("expected legacy adoption path, got matches=%v needsAdoption=%v", matches, needsAdoption)
	}

	adopted := policy.Adopt()
	if adopted.KeyID != "alfred-primary" || adopted.KeyVersion != 2 {
		t.Fatalf("expected adoption to rewrite to current policy, got %+v", adopted)
	}
}

func TestKMSBindingPolicyRejectsUnknownMismatch(t *testing.T) {
	policy := KMSBindingPolicy{KeyID: "alfred-primary", KeyVersion: 2}
	matches, needsAdoption := policy.CheckBinding(ConnectorKeyBinding{KeyID: "alfred-primary", KeyVersion: 1})
	if matches || needsAdoption {
		t.Fatalf("expected stale non-legacy version to be neither match nor adoption, got matches=%v needsAdoption=%v", matches, needsAdoption)
	}
}
