package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreatePrivacyDeleteRequest queues an account purge.
func (q *Queries) CreatePrivacyDeleteRequest(ctx context.Context, userID uuid.UUID) (*PrivacyDeleteRequest, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO privacy_delete_requests (user_id, status)
		VALUES ($1, $2)
		RETURNING id, user_id, status, created_at, updated_at
	`, userID, PrivacyDeleteStatusQueued)

	var p PrivacyDeleteRequest
	if err := row.Scan(&p.ID, &p.UserID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("creating privacy delete request: %w", err)
	}
	return &p, nil
}

// ClaimNextPrivacyDeleteRequest leases the oldest queued delete request for
// processing, FOR UPDATE SKIP LOCKED so concurrent worker replicas don't
// double-process the same account.
func (q *Queries) ClaimNextPrivacyDeleteRequest(ctx context.Context) (*PrivacyDeleteRequest, error) {
	row := q.db.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM privacy_delete_requests
			WHERE status = $1
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE privacy_delete_requests r
		SET status = $2, updated_at = now()
		FROM next
		WHERE r.id = next.id
		RETURNING r.id, r.user_id, r.status, r.created_at, r.updated_at
	`, PrivacyDeleteStatusQueued, PrivacyDeleteStatusRunning)

	var p PrivacyDeleteRequest
	if err := row.Scan(&p.ID, &p.UserID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("claiming privacy delete request: %w", err)
	}
	return &p, nil
}

// MarkPrivacyDeleteRequestDone marks a delete request completed or failed.
func (q *Queries) MarkPrivacyDeleteRequestDone(ctx context.Context, id uuid.UUID, status PrivacyDeleteRequestStatus) error {
	_, err := q.db.Exec(ctx, `
		UPDATE privacy_delete_requests SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("marking privacy delete request done: %w", err)
	}
	return nil
}

// PurgeUserData cascade-deletes every row exclusively owned by userID in a
// single transaction: connectors, devices, jobs, automation rules and their
// runs, assistant session envelopes, audit events, and finally the user row
// itself marked deleted. All of these tables are scoped to user_id, so the
// ordering only needs to respect foreign keys.
func (q *Queries) PurgeUserData(ctx context.Context, userID uuid.UUID) error {
	tx, err := beginTx(ctx, q.db)
	if err != nil {
		return fmt.Errorf("starting purge transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		`DELETE FROM automation_runs WHERE rule_id IN (SELECT id FROM automation_rules WHERE user_id = $1)`,
		`DELETE FROM automation_rules WHERE user_id = $1`,
		`DELETE FROM jobs WHERE user_id = $1`,
		`DELETE FROM assistant_encrypted_sessions WHERE user_id = $1`,
		`DELETE FROM devices WHERE user_id = $1`,
		`DELETE FROM oauth_states WHERE user_id = $1`,
		`DELETE FROM connectors WHERE user_id = $1`,
		`DELETE FROM audit_events WHERE user_id = $1`,
		`DELETE FROM user_preferences WHERE user_id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt, userID); err != nil {
			return fmt.Errorf("purging user data: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`, userID, UserStatusDeleted); err != nil {
		return fmt.Errorf("marking user deleted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing purge transaction: %w", err)
	}
	return nil
}
