package rpchandlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
)

// These four endpoints exist for wire symmetry with internal/hostapi's
// connector surface; only revoke_google_connector_token currently has a
// caller (internal/hostapi/connectors.go's RevokeConnector).
// The orchestrator fetches calendar and email data in-process within the
// enclave during process_assistant_query rather than through a self-RPC,
// so exchange/fetch below are unreached in the current wiring and exist
// so a future out-of-process orchestrator split has somewhere to land.

type exchangeGoogleAccessTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type exchangeGoogleAccessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *handlerSet) exchangeGoogleAccessToken(w http.ResponseWriter, r *http.Request) {
	var req exchangeGoogleAccessTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "exchange_access_token_invalid", err))
		return
	}
	accessToken, err := s.google.ExchangeRefreshForAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindProviderFailed, "exchange_access_token_failed", err))
		return
	}
	writeRPCJSON(w, http.StatusOK, exchangeGoogleAccessTokenResponse{AccessToken: accessToken})
}

type revokeGoogleConnectorTokenRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectorID  uuid.UUID `json:"connector_id"`
	TokenKeyID   string    `json:"token_key_id"`
	TokenVersion int       `json:"token_version"`
}

func (s *handlerSet) revokeGoogleConnectorToken(w http.ResponseWriter, r *http.Request) {
	var req revokeGoogleConnectorTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "revoke_connector_token_invalid", err))
		return
	}

	refreshToken, err := s.google.DecryptConnectorRefreshToken(r.Context(), req.UserID, req.ConnectorID, req.TokenKeyID, req.TokenVersion)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindDecryptNotAuthorized, "revoke_connector_token_decrypt_failed", err))
		return
	}

	if err := s.google.RevokeRefreshToken(r.Context(), refreshToken); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindProviderFailed, "revoke_connector_token_failed", err))
		return
	}
	writeRPCJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

type fetchGoogleCalendarEventsRequest struct {
	AccessToken string    `json:"access_token"`
	TimeMin     time.Time `json:"time_min"`
	TimeMax     time.Time `json:"time_max"`
	MaxResults  int       `json:"max_results"`
}

func (s *handlerSet) fetchGoogleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	var req fetchGoogleCalendarEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "fetch_calendar_events_invalid", err))
		return
	}
	events, err := s.google.FetchCalendarEvents(r.Context(), req.AccessToken, req.TimeMin, req.TimeMax, req.MaxResults)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindProviderFailed, "fetch_calendar_events_failed", err))
		return
	}
	writeRPCJSON(w, http.StatusOK, events)
}

type fetchGoogleEmailCandidatesRequest struct {
	AccessToken string `json:"access_token"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
}

func (s *handlerSet) fetchGoogleEmailCandidates(w http.ResponseWriter, r *http.Request) {
	var req fetchGoogleEmailCandidatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "fetch_email_candidates_invalid", err))
		return
	}
	candidates, err := s.google.FetchEmailCandidates(r.Context(), req.AccessToken, req.Query, req.MaxResults)
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindProviderFailed, "fetch_email_candidates_failed", err))
		return
	}
	writeRPCJSON(w, http.StatusOK, candidates)
}
