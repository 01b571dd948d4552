package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UserUUID derives the deterministic UUIDv5 identity for an
// (issuer, subject) pair, per spec.md's "unique id (UUID v5 derived from
// {issuer}:{subject})" invariant.
func UserUUID(issuer, subject string) uuid.UUID {
	name := issuer + ":" + subject
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
}

// GetOrCreateUser looks up a user by (issuer, subject), creating one with
// UserUUID(issuer, subject) on first sight.
func (q *Queries) GetOrCreateUser(ctx context.Context, issuer, subject string) (*User, error) {
	id := UserUUID(issuer, subject)

	row := q.db.QueryRow(ctx, `
		INSERT INTO users (id, issuer, subject, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = now()
		RETURNING id, issuer, subject, status, created_at, updated_at
	`, id, issuer, subject, UserStatusActive)

	var u User
	if err := row.Scan(&u.ID, &u.Issuer, &u.Subject, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return &u, nil
}

// GetUser fetches a user by id.
func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, issuer, subject, status, created_at, updated_at
		FROM users WHERE id = $1
	`, id)

	var u User
	if err := row.Scan(&u.ID, &u.Issuer, &u.Subject, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return &u, nil
}

// MarkUserDeleted flips a user's status to DELETED. PurgeUserData does not
// call it; it updates the status inside its own transaction.
func (q *Queries) MarkUserDeleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE users SET status = $2, updated_at = now() WHERE id = $1
	`, id, UserStatusDeleted)
	if err != nil {
		return fmt.Errorf("marking user deleted: %w", err)
	}
	return nil
}
