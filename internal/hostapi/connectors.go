package hostapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/store"
)

// oauthStateTTL bounds how long a client has to complete the Google
// consent screen before its state token expires.
const oauthStateTTL = 10 * time.Minute

// ConnectorDeps are the dependencies the Google connector handlers close
// over. The host performs the authorization-code exchange itself — it
// briefly holds the plaintext refresh token in memory only long enough
// to encrypt it with EncryptForStorage before the upsert, and never
// retains or decrypts it again afterward.
type ConnectorDeps struct {
	Store             *store.Queries
	Audit             *audit.Writer
	RPC               *enclave.RPCClient
	OAuthConfig       *oauth2.Config
	DataEncryptionKey string
	KMSKeyID          string
	KMSKeyVersion     int
}

// revokeGoogleConnectorTokenRequest is the wire contract for the
// revoke_google_connector_token RPC: the enclave looks up and decrypts
// the refresh token itself from (UserID, ConnectorID, TokenKeyID,
// TokenVersion) and calls Google's revoke endpoint. The host never
// touches the plaintext token.
type revokeGoogleConnectorTokenRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectorID  uuid.UUID `json:"connector_id"`
	TokenKeyID   string    `json:"token_key_id"`
	TokenVersion int       `json:"token_version"`
}

type startConnectorResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// StartGoogleConnector mints a one-time OAuth state, persists its hash,
// and returns the Google consent URL the client should open.
func (d ConnectorDeps) StartGoogleConnector(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "state_generation_failed", err))
		return
	}
	state := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(state))
	stateHash := hex.EncodeToString(sum[:])

	if _, err := d.Store.CreateOAuthState(r.Context(), userID, stateHash, "google", oauthStateTTL); err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "oauth_state_create_failed", err))
		return
	}

	url := d.OAuthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	Respond(w, http.StatusOK, startConnectorResponse{AuthorizationURL: url, State: state})
}

type completeConnectorRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

type connectorResponse struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider"`
	Status   string    `json:"status"`
	Scopes   []string  `json:"scopes"`
}

// CompleteGoogleConnector consumes the one-time state, exchanges the
// authorization code for tokens directly with Google, then stores the
// refresh token's ciphertext. It never forwards the authorization code
// or access token to the enclave — those only ever exist transiently on
// the host during this one request.
func (d ConnectorDeps) CompleteGoogleConnector(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req completeConnectorRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	sum := sha256.Sum256([]byte(req.State))
	stateHash := hex.EncodeToString(sum[:])

	oauthState, err := d.Store.ConsumeOAuthState(r.Context(), stateHash)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindContractRejected, "oauth_state_invalid", err))
		return
	}
	if oauthState.UserID != userID {
		writeError(w, http.StatusForbidden, "oauth_state_mismatch", "state does not belong to this user")
		return
	}

	token, err := d.OAuthConfig.Exchange(r.Context(), req.Code)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindProviderFailed, "oauth_exchange_failed", err))
		return
	}
	if token.RefreshToken == "" {
		writeError(w, http.StatusUnprocessableEntity, "oauth_no_refresh_token", "Google did not grant a refresh token; retry with prompt=consent")
		return
	}

	ciphertext, err := d.Store.EncryptForStorage(r.Context(), token.RefreshToken, d.DataEncryptionKey)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "connector_encrypt_failed", err))
		return
	}

	var scopes []string
	if raw, ok := token.Extra("scope").(string); ok && raw != "" {
		scopes = append(scopes, raw)
	}

	connector, err := d.Store.UpsertConnector(r.Context(), store.UpsertConnectorParams{
		UserID:                 userID,
		Provider:               "google",
		RefreshTokenCiphertext: ciphertext,
		TokenKeyID:             d.KMSKeyID,
		TokenVersion:           d.KMSKeyVersion,
		GrantedScopes:          scopes,
	})
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "connector_upsert_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "connector_connected", strPtr("google"), store.AuditResultSuccess, nil)

	Respond(w, http.StatusOK, connectorResponse{
		ID:       connector.ID,
		Provider: connector.Provider,
		Status:   string(connector.Status),
		Scopes:   connector.GrantedScopes,
	})
}

// RevokeConnector asks the enclave to decrypt and revoke the refresh
// token at Google, then marks the connector revoked in the store. The
// host only ever sees opaque ids and key metadata in this exchange.
func (d ConnectorDeps) RevokeConnector(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	connectorID, err := uuid.Parse(chi.URLParam(r, "connectorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_connector_id", "connectorID must be a UUID")
		return
	}

	rpcErr := d.RPC.Call(r.Context(), "/revoke_google_connector_token", revokeGoogleConnectorTokenRequest{
		UserID:       userID,
		ConnectorID:  connectorID,
		TokenKeyID:   d.KMSKeyID,
		TokenVersion: d.KMSKeyVersion,
	}, nil)
	if rpcErr != nil {
		WriteAppError(w, rpcErr)
		return
	}

	if err := d.Store.RevokeConnector(r.Context(), connectorID); err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "connector_revoke_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "connector_revoked", nil, store.AuditResultSuccess, map[string]any{
		"connector_id": connectorID.String(),
	})

	Respond(w, http.StatusNoContent, nil)
}

func strPtr(s string) *string { return &s }
