// Package attestation implements the remote-attestation challenge/response
// protocol and the KMS key-binding policy that gate every sensitive
// enclave action.
package attestation

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredhq/backend/internal/config"
	"github.com/alfredhq/backend/internal/cryptoutil"
)

// DevLocalEnclaveSentinel is the literal measurement value the dev-shim
// enclave reports. It must never appear in an allow-list outside the
// local environment.
const DevLocalEnclaveSentinel = "dev-local-enclave"

// Sentinel errors, each corresponding to a distinct sub-reason a caller
// should log without exposing to the client beyond a stable error code.
var (
	ErrChallengeExpired           = errors.New("attestation: challenge expired")
	ErrEvidenceNotBoundToWindow   = errors.New("attestation: evidence_not_bound_to_challenge_window")
	ErrEvidenceTooOld             = errors.New("attestation: evidence exceeds max attestation age")
	ErrPurposeOrRequestIDChanged  = errors.New("attestation: operation purpose or request id mismatch")
	ErrInvalidSignature           = errors.New("attestation: invalid signature")
	ErrRuntimeMismatch            = errors.New("attestation: runtime mismatch")
	ErrMeasurementNotAllowed      = errors.New("attestation: measurement_not_allowed")
	ErrChallengeReplayDetected    = errors.New("attestation: ChallengeReplayDetected")
	ErrInvalidAttestationPolicy   = errors.New("attestation: policy fails hard guard")
)

// Policy is the attestation policy consulted before every sensitive
// enclave action.
type Policy struct {
	Required                  bool
	ExpectedRuntime            string
	AllowedMeasurements        []string
	AttestationPublicKey       []byte
	MaxAttestationAgeSeconds   int64
	AllowInsecureDevAttestation bool
	MaxClockSkew               time.Duration
}

// PolicyFromConfig builds a Policy from process configuration.
func PolicyFromConfig(cfg *config.Config) (*Policy, error) {
	var pubKey []byte
	if cfg.TEEAttestationPublicKey != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.TEEAttestationPublicKey)
		if err != nil {
			return nil, fmt.Errorf("decoding TEE_ATTESTATION_PUBLIC_KEY: %w", err)
		}
		pubKey = decoded
	}

	return &Policy{
		Required:                    cfg.TEEAttestationRequired,
		ExpectedRuntime:             cfg.TEEExpectedRuntime,
		AllowedMeasurements:         cfg.TEEAllowedMeasurements,
		AttestationPublicKey:        pubKey,
		MaxAttestationAgeSeconds:    cfg.TEEMaxAttestationAgeSecs,
		AllowInsecureDevAttestation: cfg.TEEAllowInsecureDev,
		MaxClockSkew:                cfg.MaxClockSkew(),
	}, nil
}

// HardGuard enforces the non-local policy guard: outside "local",
// attestation must be required, insecure dev attestation must be
// disabled, the measurement allow-list must be non-empty and must not
// contain the dev-local sentinel, and the enclave base URL must be https
// unless it is a loopback address.
func HardGuard(env config.Environment, policy *Policy, enclaveBaseURL string) error {
	if env == config.EnvLocal {
		return nil
	}

	if !policy.Required {
		return fmt.Errorf("%w: attestation must be required outside local env", ErrInvalidAttestationPolicy)
	}
	if policy.AllowInsecureDevAttestation {
		return fmt.Errorf("%w: insecure dev attestation must be disabled outside local env", ErrInvalidAttestationPolicy)
	}
	if len(policy.AllowedMeasurements) == 0 {
		return fmt.Errorf("%w: measurement allow-list must be non-empty outside local env", ErrInvalidAttestationPolicy)
	}
	for _, m := range policy.AllowedMeasurements {
		if m == DevLocalEnclaveSentinel {
			return fmt.Errorf("%w: measurement allow-list must not contain %q outside local env", ErrInvalidAttestationPolicy, DevLocalEnclaveSentinel)
		}
	}

	u, err := url.Parse(enclaveBaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid enclave base URL: %v", ErrInvalidAttestationPolicy, err)
	}
	if u.Scheme != "https" && !isLoopbackHost(u.Hostname()) {
		return fmt.Errorf("%w: enclave base URL must be https unless loopback, got %q", ErrInvalidAttestationPolicy, enclaveBaseURL)
	}

	return nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Challenge is sent by the host to the enclave before a sensitive action.
type Challenge struct {
	ChallengeNonce   string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	OperationPurpose string
	RequestID        string
}

// Response is returned by the enclave: the challenge fields verbatim,
// plus the enclave's attested identity and a signature over the whole
// canonical payload.
type Response struct {
	ChallengeNonce   string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	OperationPurpose string
	RequestID        string
	Runtime          string
	Measurement      string
	EvidenceIssuedAt time.Time
	Signature        []byte
}

// NewChallenge builds a fresh challenge with a random nonce, valid for ttl.
func NewChallenge(operationPurpose, requestID string, now time.Time, ttl time.Duration) (*Challenge, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating challenge nonce: %w", err)
	}
	return &Challenge{
		ChallengeNonce:   hex.EncodeToString(buf),
		IssuedAt:         now,
		ExpiresAt:        now.Add(ttl),
		OperationPurpose: operationPurpose,
		RequestID:        requestID,
	}, nil
}

// SigningPayload builds the canonical byte sequence the enclave signs and
// the host re-verifies. Fields are concatenated with a zero-byte
// separator, matching the RPC HMAC convention, so that no combination of
// field values can be confused with another.
func SigningPayload(r *Response) []byte {
	var b strings.Builder
	fields := []string{
		r.ChallengeNonce,
		strconv.FormatInt(r.IssuedAt.Unix(), 10),
		strconv.FormatInt(r.ExpiresAt.Unix(), 10),
		r.OperationPurpose,
		r.RequestID,
		r.Runtime,
		r.Measurement,
		strconv.FormatInt(r.EvidenceIssuedAt.Unix(), 10),
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(f)
	}
	return []byte(b.String())
}

// VerifyResponse runs the full verification order from the policy: challenge
// expiry, evidence window containment, evidence age, purpose/request_id
// integrity, Ed25519 signature, runtime match, measurement allow-list, and
// finally nonce replay via guard. now is injected for testability.
func VerifyResponse(policy *Policy, challenge *Challenge, resp *Response, guard *ReplayGuard, now time.Time) error {
	if now.After(challenge.ExpiresAt) {
		return ErrChallengeExpired
	}

	windowStart := challenge.IssuedAt.Add(-policy.MaxClockSkew)
	if resp.EvidenceIssuedAt.Before(windowStart) || resp.EvidenceIssuedAt.After(challenge.ExpiresAt) {
		return ErrEvidenceNotBoundToWindow
	}

	age := now.Sub(resp.EvidenceIssuedAt)
	if age > time.Duration(policy.MaxAttestationAgeSeconds)*time.Second {
		return ErrEvidenceTooOld
	}

	if resp.OperationPurpose != challenge.OperationPurpose || resp.RequestID != challenge.RequestID {
		return ErrPurposeOrRequestIDChanged
	}

	if len(policy.AttestationPublicKey) > 0 {
		if err := cryptoutil.VerifyEd25519(policy.AttestationPublicKey, SigningPayload(resp), resp.Signature); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	if resp.Runtime != policy.ExpectedRuntime {
		return ErrRuntimeMismatch
	}

	allowed := false
	for _, m := range policy.AllowedMeasurements {
		if m == resp.Measurement {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrMeasurementNotAllowed
	}

	if guard != nil {
		if err := guard.VerifyAndRecord(resp.ChallengeNonce, challenge.ExpiresAt.Unix(), now.Unix()); err != nil {
			return ErrChallengeReplayDetected
		}
	}

	return nil
}
