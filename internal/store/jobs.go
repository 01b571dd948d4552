package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueueJobParams carries the fields written when a job is created,
// either directly (push notification) or from a materialized automation
// run (encrypted prompt payload).
type EnqueueJobParams struct {
	UserID            uuid.UUID
	JobType           JobType
	DueAt             time.Time
	IdempotencyKey    *string
	PayloadCiphertext []byte
}

// EnqueueJob inserts a job. If IdempotencyKey is set and a job with that
// key already exists, the existing row is returned instead of inserting a
// duplicate.
func (q *Queries) EnqueueJob(ctx context.Context, p EnqueueJobParams) (*Job, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO jobs (user_id, job_type, due_at, status, idempotency_key, payload_ciphertext, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO UPDATE SET updated_at = jobs.updated_at
		RETURNING id, user_id, job_type, due_at, attempts, status, idempotency_key, payload_ciphertext, last_error, next_attempt_at, lease_owner, lease_expires_at, created_at, updated_at
	`, p.UserID, p.JobType, p.DueAt, JobStatusQueued, p.IdempotencyKey, p.PayloadCiphertext)

	var j Job
	if err := row.Scan(&j.ID, &j.UserID, &j.JobType, &j.DueAt, &j.Attempts, &j.Status, &j.IdempotencyKey, &j.PayloadCiphertext, &j.LastError, &j.NextAttemptAt, &j.LeaseOwner, &j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, fmt.Errorf("enqueueing job: %w", err)
	}
	return &j, nil
}

// ClaimDueJobs leases up to batchSize queued (or retry-ready) jobs whose
// due_at/next_attempt_at has passed, using SELECT ... FOR UPDATE SKIP
// LOCKED for the same exclusion guarantee as automation rule claiming.
func (q *Queries) ClaimDueJobs(ctx context.Context, now time.Time, workerID string, batchSize int, leaseSeconds int64) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
		WITH due AS (
			SELECT id FROM jobs
			WHERE status IN ($1, $5)
			  AND due_at <= $2
			  AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
			  AND (lease_expires_at IS NULL OR lease_expires_at < $2)
			ORDER BY due_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $3
		)
		UPDATE jobs j
		SET status = $5, lease_owner = $4, lease_expires_at = $2 + ($6 || ' seconds')::interval
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.user_id, j.job_type, j.due_at, j.attempts, j.status, j.idempotency_key, j.payload_ciphertext, j.last_error, j.next_attempt_at, j.lease_owner, j.lease_expires_at, j.created_at, j.updated_at
	`, JobStatusQueued, now, batchSize, workerID, JobStatusRunning, leaseSeconds)
	if err != nil {
		return nil, fmt.Errorf("claiming due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.JobType, &j.DueAt, &j.Attempts, &j.Status, &j.IdempotencyKey, &j.PayloadCiphertext, &j.LastError, &j.NextAttemptAt, &j.LeaseOwner, &j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed jobs: %w", err)
	}
	return jobs, nil
}

// MarkJobDone marks a job successfully completed.
func (q *Queries) MarkJobDone(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = $2, lease_owner = NULL, lease_expires_at = NULL, updated_at = now() WHERE id = $1
	`, id, JobStatusDone)
	if err != nil {
		return fmt.Errorf("marking job done: %w", err)
	}
	return nil
}

// ScheduleJobRetry records a transient failure and schedules the job to
// be retried at nextAttemptAt with attempts incremented.
func (q *Queries) ScheduleJobRetry(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = $2, attempts = attempts + 1, last_error = $3, next_attempt_at = $4,
			lease_owner = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`, id, JobStatusQueued, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("scheduling job retry: %w", err)
	}
	return nil
}

// DeadLetterJob marks a job dead, preserving the last error, either
// because it failed permanently or exhausted its retry budget.
func (q *Queries) DeadLetterJob(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = $2, attempts = attempts + 1, last_error = $3,
			lease_owner = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`, id, JobStatusDead, lastError)
	if err != nil {
		return fmt.Errorf("dead-lettering job: %w", err)
	}
	return nil
}

// GetJob fetches a job by id.
func (q *Queries) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, job_type, due_at, attempts, status, idempotency_key, payload_ciphertext, last_error, next_attempt_at, lease_owner, lease_expires_at, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)

	var j Job
	if err := row.Scan(&j.ID, &j.UserID, &j.JobType, &j.DueAt, &j.Attempts, &j.Status, &j.IdempotencyKey, &j.PayloadCiphertext, &j.LastError, &j.NextAttemptAt, &j.LeaseOwner, &j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	return &j, nil
}
