package hostapi

import (
	"encoding/json"
	"net/http"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/store"
)

// PreferencesDeps are the dependencies GetPreferences/PutPreferences
// close over.
type PreferencesDeps struct {
	Store *store.Queries
	Audit *audit.Writer
}

type preferencesResponse struct {
	TimeZone string          `json:"time_zone"`
	Settings json.RawMessage `json:"settings"`
}

// GetPreferences returns a user's notification preferences, defaulting
// to UTC and empty settings if the user has never set any.
func (d PreferencesDeps) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	prefs, err := d.Store.GetPreferences(r.Context(), userID)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "preferences_fetch_failed", err))
		return
	}

	Respond(w, http.StatusOK, preferencesResponse{TimeZone: prefs.TimeZone, Settings: prefs.Settings})
}

type putPreferencesRequest struct {
	TimeZone string          `json:"time_zone" validate:"required"`
	Settings json.RawMessage `json:"settings" validate:"required"`
}

// PutPreferences replaces a user's preferences wholesale.
func (d PreferencesDeps) PutPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req putPreferencesRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if !json.Valid(req.Settings) {
		writeError(w, http.StatusBadRequest, "invalid_settings", "settings must be valid JSON")
		return
	}

	prefs, err := d.Store.PutPreferences(r.Context(), store.PutPreferencesParams{
		UserID:   userID,
		TimeZone: req.TimeZone,
		Settings: req.Settings,
	})
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "preferences_put_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "preferences_updated", nil, store.AuditResultSuccess, nil)

	Respond(w, http.StatusOK, preferencesResponse{TimeZone: prefs.TimeZone, Settings: prefs.Settings})
}
