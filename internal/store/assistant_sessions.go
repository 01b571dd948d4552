package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PutAssistantSession upserts an opaque session-memory envelope for
// (userID, sessionID). The caller has already encrypted Envelope under an
// enclave-only key; this layer never inspects its contents.
func (q *Queries) PutAssistantSession(ctx context.Context, userID uuid.UUID, sessionID string, envelope []byte, keyID string, expiresAt time.Time) (*AssistantEncryptedSession, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO assistant_encrypted_sessions (user_id, session_id, envelope, key_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, session_id) DO UPDATE SET
			envelope = EXCLUDED.envelope,
			key_id = EXCLUDED.key_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		RETURNING user_id, session_id, envelope, key_id, expires_at, created_at, updated_at
	`, userID, sessionID, envelope, keyID, expiresAt)

	var s AssistantEncryptedSession
	if err := row.Scan(&s.UserID, &s.SessionID, &s.Envelope, &s.KeyID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("putting assistant session: %w", err)
	}
	return &s, nil
}

// GetAssistantSession fetches an unexpired session envelope. Callers must
// treat an expired row as absent — the TTL is enforced here, not left to
// the caller's clock.
func (q *Queries) GetAssistantSession(ctx context.Context, userID uuid.UUID, sessionID string, now time.Time) (*AssistantEncryptedSession, error) {
	row := q.db.QueryRow(ctx, `
		SELECT user_id, session_id, envelope, key_id, expires_at, created_at, updated_at
		FROM assistant_encrypted_sessions
		WHERE user_id = $1 AND session_id = $2 AND expires_at > $3
	`, userID, sessionID, now)

	var s AssistantEncryptedSession
	if err := row.Scan(&s.UserID, &s.SessionID, &s.Envelope, &s.KeyID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("fetching assistant session: %w", err)
	}
	return &s, nil
}

// ListAssistantSessionsForUser returns every unexpired session a user has
// open, newest first. Envelope is included but stays opaque to the host;
// only the enclave's session key can open it.
func (q *Queries) ListAssistantSessionsForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]AssistantEncryptedSession, error) {
	rows, err := q.db.Query(ctx, `
		SELECT user_id, session_id, envelope, key_id, expires_at, created_at, updated_at
		FROM assistant_encrypted_sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY updated_at DESC
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing assistant sessions for user: %w", err)
	}
	defer rows.Close()

	var sessions []AssistantEncryptedSession
	for rows.Next() {
		var s AssistantEncryptedSession
		if err := rows.Scan(&s.UserID, &s.SessionID, &s.Envelope, &s.KeyID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning assistant session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assistant sessions: %w", err)
	}
	return sessions, nil
}

// DeleteAssistantSession removes a session envelope, e.g. on explicit
// client-side "forget this conversation" or privacy delete cascade.
func (q *Queries) DeleteAssistantSession(ctx context.Context, userID uuid.UUID, sessionID string) error {
	_, err := q.db.Exec(ctx, `
		DELETE FROM assistant_encrypted_sessions WHERE user_id = $1 AND session_id = $2
	`, userID, sessionID)
	if err != nil {
		return fmt.Errorf("deleting assistant session: %w", err)
	}
	return nil
}

// DeleteExpiredAssistantSessions purges every session past its TTL. No
// code in this repository calls it.
func (q *Queries) DeleteExpiredAssistantSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM assistant_encrypted_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purging expired assistant sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
