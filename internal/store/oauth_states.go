package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateOAuthState inserts a single-use OAuth state value with a TTL.
func (q *Queries) CreateOAuthState(ctx context.Context, userID uuid.UUID, stateHash, provider string, ttl time.Duration) (*OAuthState, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO oauth_states (user_id, state_hash, provider, expires_at)
		VALUES ($1, $2, $3, now() + $4)
		RETURNING id, user_id, state_hash, provider, expires_at, consumed_at, created_at
	`, userID, stateHash, provider, ttl)

	var s OAuthState
	if err := row.Scan(&s.ID, &s.UserID, &s.StateHash, &s.Provider, &s.ExpiresAt, &s.ConsumedAt, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("creating oauth state: %w", err)
	}
	return &s, nil
}

// ConsumeOAuthState atomically consumes an unexpired, unconsumed state
// value. Returns ErrNoRows-wrapping error if the state was already
// consumed, expired, or never existed — callers must treat all three as
// equally invalid.
func (q *Queries) ConsumeOAuthState(ctx context.Context, stateHash string) (*OAuthState, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE oauth_states SET consumed_at = now()
		WHERE state_hash = $1 AND consumed_at IS NULL AND expires_at > now()
		RETURNING id, user_id, state_hash, provider, expires_at, consumed_at, created_at
	`, stateHash)

	var s OAuthState
	if err := row.Scan(&s.ID, &s.UserID, &s.StateHash, &s.Provider, &s.ExpiresAt, &s.ConsumedAt, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("consuming oauth state: %w", err)
	}
	return &s, nil
}
