package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertAuditEventParams carries the fields written for a single audit
// entry. RedactedMetadata must already have sensitive keys scrubbed by the
// caller — this layer persists whatever it is handed verbatim.
type InsertAuditEventParams struct {
	UserID           uuid.UUID
	EventType        string
	Connector        *string
	Result           AuditResult
	RedactedMetadata json.RawMessage
}

// InsertAuditEvent appends an audit event. The table is insert-only; there
// is no update or delete path outside the privacy-delete cascade.
func (q *Queries) InsertAuditEvent(ctx context.Context, p InsertAuditEventParams) (*AuditEvent, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO audit_events (user_id, event_type, connector, result, redacted_metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, event_type, connector, result, redacted_metadata, created_at
	`, p.UserID, p.EventType, p.Connector, p.Result, []byte(p.RedactedMetadata))

	var e AuditEvent
	if err := row.Scan(&e.ID, &e.UserID, &e.EventType, &e.Connector, &e.Result, &e.RedactedMetadata, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting audit event: %w", err)
	}
	return &e, nil
}

// ListAuditEventsForUser returns up to limit events for a user strictly
// older than the given (created_at, id) cursor, ordered newest-first.
// Callers pass their page size plus one so they can detect a following
// page by checking for the extra row.
func (q *Queries) ListAuditEventsForUser(ctx context.Context, userID uuid.UUID, before *time.Time, beforeID *uuid.UUID, limit int) ([]AuditEvent, error) {
	var rows pgx.Rows
	var err error

	if before != nil && beforeID != nil {
		rows, err = q.db.Query(ctx, `
			SELECT id, user_id, event_type, connector, result, redacted_metadata, created_at
			FROM audit_events
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, userID, *before, *beforeID, limit)
	} else {
		rows, err = q.db.Query(ctx, `
			SELECT id, user_id, event_type, connector, result, redacted_metadata, created_at
			FROM audit_events
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing audit events for user: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Connector, &e.Result, &e.RedactedMetadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit event rows: %w", err)
	}
	return events, nil
}

// DeleteAuditEventsForUser removes every audit event for a user.
// PurgeUserData does not call it; it deletes these rows itself.
func (q *Queries) DeleteAuditEventsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM audit_events WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting audit events for user: %w", err)
	}
	return nil
}
