package hostapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/store"
)

// AssistantDeps are the dependencies the assistant handlers close over.
// AssistantQuery and AssistantAttestedKey never parse the sealed request
// body: they relay it to the enclave verbatim and relay the sealed
// response back, so plaintext only ever exists inside the TEE process.
type AssistantDeps struct {
	Store *store.Queries
	Audit *audit.Writer
	RPC   *enclave.RPCClient
}

const maxAssistantBody = 1 << 20 // 1 MiB, matches Decode's cap elsewhere

// AssistantQuery relays a sealed assistant request envelope to the
// enclave's process_assistant_query RPC and relays the sealed response
// back unmodified.
func (d AssistantDeps) AssistantQuery(w http.ResponseWriter, r *http.Request) {
	d.relay(w, r, "/process_assistant_query", "assistant_query")
}

// AssistantAttestedKey relays an attestation challenge/response to the
// enclave's fetch_assistant_attested_key RPC so the client can bind its
// envelope keys to a freshly attested enclave instance.
func (d AssistantDeps) AssistantAttestedKey(w http.ResponseWriter, r *http.Request) {
	d.relay(w, r, "/fetch_assistant_attested_key", "assistant_attested_key")
}

func (d AssistantDeps) relay(w http.ResponseWriter, r *http.Request, rpcPath, eventType string) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAssistantBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}

	var raw json.RawMessage = body
	var out json.RawMessage
	if rpcErr := d.RPC.Call(r.Context(), rpcPath, raw, &out); rpcErr != nil {
		d.Audit.LogFromRequest(r, userID, eventType, nil, store.AuditResultFailure, nil)
		WriteAppError(w, rpcErr)
		return
	}

	d.Audit.LogFromRequest(r, userID, eventType, nil, store.AuditResultSuccess, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

type assistantSessionResponse struct {
	SessionID string `json:"session_id"`
	KeyID     string `json:"key_id"`
}

// ListAssistantSessions lists a user's open assistant session ids. The
// envelope contents stay opaque; only the enclave can open them.
func (d AssistantDeps) ListAssistantSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	sessions, err := d.Store.ListAssistantSessionsForUser(r.Context(), userID, time.Now().UTC())
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "assistant_session_list_failed", err))
		return
	}

	out := make([]assistantSessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, assistantSessionResponse{SessionID: s.SessionID, KeyID: s.KeyID})
	}
	Respond(w, http.StatusOK, out)
}

// DeleteAssistantSession forgets a session's encrypted memory envelope.
func (d AssistantDeps) DeleteAssistantSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "sessionID is required")
		return
	}

	if err := d.Store.DeleteAssistantSession(r.Context(), userID, sessionID); err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "assistant_session_delete_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "assistant_session_deleted", nil, store.AuditResultSuccess, map[string]any{
		"session_id": sessionID,
	})

	Respond(w, http.StatusNoContent, nil)
}
