package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserPreferences holds the plaintext, host-readable settings that shape
// proactive notifications: morning brief timing, urgent-email checks, and
// quiet hours. Unlike connector tokens or assistant session state, these
// are never ciphertext — the host reads and writes them directly.
type UserPreferences struct {
	UserID       uuid.UUID
	TimeZone     string
	Settings     json.RawMessage
	UpdatedAt    time.Time
}

// GetPreferences fetches a user's preferences, returning the zero-value
// defaults if the user has never written any.
func (q *Queries) GetPreferences(ctx context.Context, userID uuid.UUID) (*UserPreferences, error) {
	row := q.db.QueryRow(ctx, `
		SELECT user_id, time_zone, settings, updated_at
		FROM user_preferences WHERE user_id = $1
	`, userID)

	var p UserPreferences
	if err := row.Scan(&p.UserID, &p.TimeZone, &p.Settings, &p.UpdatedAt); err != nil {
		return &UserPreferences{UserID: userID, TimeZone: "UTC", Settings: json.RawMessage(`{}`)}, nil
	}
	return &p, nil
}

// PutPreferencesParams carries a full replacement of a user's preferences.
type PutPreferencesParams struct {
	UserID   uuid.UUID
	TimeZone string
	Settings json.RawMessage
}

// PutPreferences upserts a user's preferences wholesale.
func (q *Queries) PutPreferences(ctx context.Context, p PutPreferencesParams) (*UserPreferences, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO user_preferences (user_id, time_zone, settings, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			time_zone = EXCLUDED.time_zone,
			settings = EXCLUDED.settings,
			updated_at = now()
		RETURNING user_id, time_zone, settings, updated_at
	`, p.UserID, p.TimeZone, []byte(p.Settings))

	var pref UserPreferences
	if err := row.Scan(&pref.UserID, &pref.TimeZone, &pref.Settings, &pref.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upserting preferences: %w", err)
	}
	return &pref, nil
}

// DeletePreferences removes a user's preferences row. PurgeUserData does
// not call it; it deletes the row itself.
func (q *Queries) DeletePreferences(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting preferences: %w", err)
	}
	return nil
}
