package rpchandlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/attestation"
	"github.com/alfredhq/backend/internal/cryptoutil"
)

// fetchAssistantAttestedKeyRequest carries the host-issued challenge the
// enclave must answer before its long-term envelope key is trusted for a
// new client session. The host relays this body verbatim from the client
// (internal/hostapi/assistant.go) and relays the signed response back
// without verifying it.
type fetchAssistantAttestedKeyRequest struct {
	ChallengeNonce   string `json:"challenge_nonce"`
	IssuedAt         int64  `json:"issued_at"`
	ExpiresAt        int64  `json:"expires_at"`
	OperationPurpose string `json:"operation_purpose"`
	RequestID        string `json:"request_id"`
}

type fetchAssistantAttestedKeyResponse struct {
	ChallengeNonce    string `json:"challenge_nonce"`
	IssuedAt          int64  `json:"issued_at"`
	ExpiresAt         int64  `json:"expires_at"`
	OperationPurpose  string `json:"operation_purpose"`
	RequestID         string `json:"request_id"`
	Runtime           string `json:"runtime"`
	Measurement       string `json:"measurement"`
	EvidenceIssuedAt  int64  `json:"evidence_issued_at"`
	Signature         string `json:"signature"`
	EnvelopePublicKey string `json:"envelope_public_key"`
	EnvelopeKeyID     string `json:"envelope_key_id"`
}

// fetchAssistantAttestedKey answers a remote-attestation challenge with a
// signed Response and the enclave's long-term X25519 envelope public key.
// The host passes the response to the client unchanged; verifying the
// signature over SigningPayload (attestation.VerifyResponse) is left to
// the receiver of the response.
func (s *handlerSet) fetchAssistantAttestedKey(w http.ResponseWriter, r *http.Request) {
	var req fetchAssistantAttestedKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "attested_key_invalid", err))
		return
	}

	now := time.Now().UTC()
	challenge := &attestation.Challenge{
		ChallengeNonce:   req.ChallengeNonce,
		IssuedAt:         time.Unix(req.IssuedAt, 0).UTC(),
		ExpiresAt:        time.Unix(req.ExpiresAt, 0).UTC(),
		OperationPurpose: req.OperationPurpose,
		RequestID:        req.RequestID,
	}
	if now.After(challenge.ExpiresAt) {
		writeRPCError(w, apperr.New(apperr.KindUnauthorized, "attested_key_challenge_expired", "challenge expired before the enclave could answer"))
		return
	}
	if s.replayGuard != nil {
		if err := s.replayGuard.VerifyAndRecord(challenge.ChallengeNonce, challenge.ExpiresAt.Unix(), now.Unix()); err != nil {
			writeRPCError(w, apperr.Wrap(apperr.KindReplayDetected, "attested_key_challenge_replayed", err))
			return
		}
	}

	resp := &attestation.Response{
		ChallengeNonce:   challenge.ChallengeNonce,
		IssuedAt:         challenge.IssuedAt,
		ExpiresAt:        challenge.ExpiresAt,
		OperationPurpose: challenge.OperationPurpose,
		RequestID:        challenge.RequestID,
		Runtime:          s.runtime,
		Measurement:      s.measurement,
		EvidenceIssuedAt: now,
	}
	signature, err := cryptoutil.SignEd25519(s.attestationKey, attestation.SigningPayload(resp))
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInternalError, "attested_key_sign_failed", err))
		return
	}
	resp.Signature = signature

	writeRPCJSON(w, http.StatusOK, fetchAssistantAttestedKeyResponse{
		ChallengeNonce:    resp.ChallengeNonce,
		IssuedAt:          resp.IssuedAt.Unix(),
		ExpiresAt:         resp.ExpiresAt.Unix(),
		OperationPurpose:  resp.OperationPurpose,
		RequestID:         resp.RequestID,
		Runtime:           resp.Runtime,
		Measurement:       resp.Measurement,
		EvidenceIssuedAt:  resp.EvidenceIssuedAt.Unix(),
		Signature:         base64.StdEncoding.EncodeToString(resp.Signature),
		EnvelopePublicKey: base64.StdEncoding.EncodeToString(s.enclaveKeys.PublicKey[:]),
		EnvelopeKeyID:     s.sessionRing.CurrentKeyID(),
	})
}
