package hostapi

import (
	"net/http"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/store"
)

// PrivacyDeps are the dependencies RequestPrivacyDelete closes over.
type PrivacyDeps struct {
	Store *store.Queries
	Audit *audit.Writer
}

type privacyDeleteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RequestPrivacyDelete records a QUEUED privacy delete request and answers
// 202. store.ClaimNextPrivacyDeleteRequest and store.PurgeUserData
// implement the purge itself; no worker loop in this repository calls
// them, so a queued request stays QUEUED.
func (d PrivacyDeps) RequestPrivacyDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	req, err := d.Store.CreatePrivacyDeleteRequest(r.Context(), userID)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "privacy_delete_request_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "privacy_delete_requested", nil, store.AuditResultSuccess, nil)

	Respond(w, http.StatusAccepted, privacyDeleteResponse{ID: req.ID.String(), Status: string(req.Status)})
}
