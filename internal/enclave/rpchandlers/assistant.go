package rpchandlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/orchestrator"
)

// assistantQueryRequest is the wire contract for process_assistant_query.
// The host relays this body verbatim (internal/hostapi/assistant.go never
// parses it); only RequestID, UserID and SessionID (plus the envelope's
// public key and nonce) live outside the sealed envelope. The query
// itself is inside it.
type assistantQueryRequest struct {
	RequestID                string `json:"request_id"`
	UserID                   string `json:"user_id"`
	ClientEphemeralPublicKey string `json:"client_ephemeral_public_key"`
	Nonce                    string `json:"nonce"`
	Ciphertext               string `json:"ciphertext"`
	SessionID                string `json:"session_id,omitempty"`
}

type assistantQueryResponse struct {
	RequestID  string `json:"request_id"`
	SessionID  string `json:"session_id"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// sessionEnvelopeBlob packs a SealedEnvelope into the single opaque
// []byte column store.PutAssistantSession writes.
type sessionEnvelopeBlob struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (s *handlerSet) processAssistantQuery(w http.ResponseWriter, r *http.Request) {
	var req assistantQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "assistant_query_invalid", err))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "assistant_query_invalid_user_id", err))
		return
	}

	clientPub, nonce, ciphertext, err := decodeEnvelopeFields(req.ClientEphemeralPublicKey, req.Nonce, req.Ciphertext)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "assistant_query_invalid_envelope", err))
		return
	}

	plaintext, err := orchestrator.OpenRequest(s.enclaveKeys, clientPub, req.RequestID, nonce, ciphertext)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindUnauthorized, "assistant_query_open_failed", err))
		return
	}

	now := time.Now().UTC()
	sessionID := req.SessionID
	memory := s.loadSessionMemory(r, userID, sessionID, req.RequestID, now)

	result, err := orchestrator.Run(r.Context(), orchestrator.Request{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Query:     plaintext.Query,
		Memory:    memory,
		Now:       now,
	}, newGoogleFetcherAdapter(s.google, s.store), newPlannerAdapter(s.gateway, req.UserID))
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInternalError, "assistant_query_orchestrator_failed", err))
		return
	}
	result.Response.AttestedIdentity = s.runtime

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := s.saveSessionMemory(r, userID, sessionID, req.RequestID, result.Memory, now); err != nil {
		s.logger.Error("sealing session state", "error", err, "session_id", sessionID)
	}

	sealed, err := orchestrator.SealResponse(s.enclaveKeys, clientPub, req.RequestID, result.Response)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInternalError, "assistant_query_seal_failed", err))
		return
	}

	writeRPCJSON(w, http.StatusOK, assistantQueryResponse{
		RequestID:  req.RequestID,
		SessionID:  sessionID,
		Nonce:      base64.StdEncoding.EncodeToString(sealed.Nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed.Ciphertext),
	})
}

func (s *handlerSet) loadSessionMemory(r *http.Request, userID uuid.UUID, sessionID, requestID string, now time.Time) *orchestrator.SessionMemory {
	if sessionID == "" {
		return nil
	}
	row, err := s.store.GetAssistantSession(r.Context(), userID, sessionID, now)
	if err != nil {
		return nil
	}
	var blob sessionEnvelopeBlob
	if err := json.Unmarshal(row.Envelope, &blob); err != nil {
		s.logger.Warn("unmarshaling session envelope blob", "error", err, "session_id", sessionID)
		return nil
	}
	memory, err := orchestrator.OpenSessionState(s.sessionRing, orchestrator.SealedEnvelope{Nonce: blob.Nonce, Ciphertext: blob.Ciphertext}, row.KeyID, requestID)
	if err != nil {
		s.logger.Warn("opening session state", "error", err, "session_id", sessionID)
		return nil
	}
	return memory
}

func (s *handlerSet) saveSessionMemory(r *http.Request, userID uuid.UUID, sessionID, requestID string, memory *orchestrator.SessionMemory, now time.Time) error {
	sealed, keyID, err := orchestrator.SealSessionState(s.sessionRing, memory, requestID)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(sessionEnvelopeBlob{Nonce: sealed.Nonce, Ciphertext: sealed.Ciphertext})
	if err != nil {
		return err
	}
	_, err = s.store.PutAssistantSession(r.Context(), userID, sessionID, blob, keyID, now.Add(orchestrator.SessionStateTTL))
	return err
}

func decodeEnvelopeFields(pubKeyB64, nonceB64, ciphertextB64 string) (pubKey [32]byte, nonce, ciphertext []byte, err error) {
	pubKeyRaw, err := base64.StdEncoding.DecodeString(pubKeyB64)
	if err != nil {
		return pubKey, nil, nil, err
	}
	if len(pubKeyRaw) != 32 {
		return pubKey, nil, nil, apperr.New(apperr.KindInvalidRequest, "assistant_query_bad_pubkey_length", "client_ephemeral_public_key must be 32 bytes")
	}
	copy(pubKey[:], pubKeyRaw)

	if nonce, err = base64.StdEncoding.DecodeString(nonceB64); err != nil {
		return pubKey, nil, nil, err
	}
	if ciphertext, err = base64.StdEncoding.DecodeString(ciphertextB64); err != nil {
		return pubKey, nil, nil, err
	}
	return pubKey, nonce, ciphertext, nil
}
