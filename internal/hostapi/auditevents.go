package hostapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/store"
)

// AuditEventDeps are the dependencies ListAuditEvents closes over.
type AuditEventDeps struct {
	Store *store.Queries
}

type auditEventResponse struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Connector *string         `json:"connector,omitempty"`
	Result    string          `json:"result"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListAuditEvents returns a user's own audit log, cursor-paginated
// newest-first.
func (d AuditEventDeps) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	params, err := ParseCursorParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pagination", err.Error())
		return
	}

	var before *time.Time
	var beforeID *uuid.UUID
	if params.After != nil {
		before = &params.After.CreatedAt
		beforeID = &params.After.ID
	}

	events, err := d.Store.ListAuditEventsForUser(r.Context(), userID, before, beforeID, params.Limit+1)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "audit_event_list_failed", err))
		return
	}

	items := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, auditEventResponse{
			ID:        e.ID,
			EventType: e.EventType,
			Connector: e.Connector,
			Result:    string(e.Result),
			Metadata:  e.RedactedMetadata,
			CreatedAt: e.CreatedAt,
		})
	}

	page := NewCursorPage(items, params.Limit, func(e auditEventResponse) Cursor {
		return Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	Respond(w, http.StatusOK, page)
}
