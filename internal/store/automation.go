package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// beginner is satisfied by both *pgxpool.Pool and pgx.Tx; it lets
// MaterializeAutomationRun open a transaction regardless of which kind of
// DBTX it was handed.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func beginTx(ctx context.Context, db DBTX) (pgx.Tx, error) {
	b, ok := db.(beginner)
	if !ok {
		return nil, fmt.Errorf("store: DBTX does not support beginning a transaction")
	}
	return b.Begin(ctx)
}

// ClaimDueAutomationRules leases up to batchSize active automation rules
// whose next_run_at has passed, using SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent worker replicas never double-claim the same rule. Each
// claimed row's lease_owner/lease_expires_at is set before it is
// returned.
func (q *Queries) ClaimDueAutomationRules(ctx context.Context, now time.Time, workerID string, batchSize int, leaseSeconds int64) ([]AutomationRule, error) {
	rows, err := q.db.Query(ctx, `
		WITH due AS (
			SELECT id FROM automation_rules
			WHERE status = $1
			  AND next_run_at <= $2
			  AND (lease_expires_at IS NULL OR lease_expires_at < $2)
			ORDER BY next_run_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $3
		)
		UPDATE automation_rules r
		SET lease_owner = $4, lease_expires_at = $2 + ($5 || ' seconds')::interval
		FROM due
		WHERE r.id = due.id
		RETURNING r.id, r.user_id, r.interval_seconds, r.time_zone, r.next_run_at, r.lease_owner, r.lease_expires_at, r.status, r.prompt_ciphertext, r.prompt_sha256, r.last_run_at, r.created_at, r.updated_at
	`, AutomationRuleStatusActive, now, batchSize, workerID, leaseSeconds)
	if err != nil {
		return nil, fmt.Errorf("claiming due automation rules: %w", err)
	}
	defer rows.Close()

	var rules []AutomationRule
	for rows.Next() {
		var r AutomationRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.IntervalSeconds, &r.TimeZone, &r.NextRunAt, &r.LeaseOwner, &r.LeaseExpiresAt, &r.Status, &r.PromptCiphertext, &r.PromptSHA256, &r.LastRunAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning claimed automation rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed automation rules: %w", err)
	}
	return rules, nil
}

// MaterializeAutomationRun idempotently inserts an AutomationRun for
// (ruleID, scheduledFor) and advances the rule's next_run_at, but only if
// this worker still holds the lease — a concurrent lease loss returns
// (nil, nil) rather than an error so the caller can skip and log a
// warning instead of treating it as a failure.
func (q *Queries) MaterializeAutomationRun(ctx context.Context, ruleID uuid.UUID, workerID string, scheduledFor, nextRunAt time.Time, idempotencyKey string) (*AutomationRun, error) {
	tx, err := beginTx(ctx, q.db)
	if err != nil {
		return nil, fmt.Errorf("starting materialize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stillLeased bool
	if err := tx.QueryRow(ctx, `
		SELECT lease_owner = $2 FROM automation_rules WHERE id = $1 FOR UPDATE
	`, ruleID, workerID).Scan(&stillLeased); err != nil {
		return nil, fmt.Errorf("checking automation rule lease: %w", err)
	}
	if !stillLeased {
		return nil, nil
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO automation_runs (rule_id, scheduled_for, next_run_at, state, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rule_id, scheduled_for) DO UPDATE SET updated_at = now()
		RETURNING id, rule_id, scheduled_for, next_run_at, state, job_id, idempotency_key, created_at, updated_at
	`, ruleID, scheduledFor, nextRunAt, AutomationRunStateMaterialized, idempotencyKey)

	var run AutomationRun
	if err := row.Scan(&run.ID, &run.RuleID, &run.ScheduledFor, &run.NextRunAt, &run.State, &run.JobID, &run.IdempotencyKey, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, fmt.Errorf("materializing automation run: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE automation_rules SET next_run_at = $2, last_run_at = $3, lease_owner = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`, ruleID, nextRunAt, scheduledFor); err != nil {
		return nil, fmt.Errorf("advancing automation rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing materialize transaction: %w", err)
	}

	return &run, nil
}

// MarkAutomationRunEnqueued links a materialized run to the job created
// to dispatch it.
func (q *Queries) MarkAutomationRunEnqueued(ctx context.Context, runID, jobID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE automation_runs SET state = $2, job_id = $3, updated_at = now() WHERE id = $1
	`, runID, AutomationRunStateEnqueued, jobID)
	if err != nil {
		return fmt.Errorf("marking automation run enqueued: %w", err)
	}
	return nil
}

// MarkAutomationRunFailed marks a run failed when enqueueing itself fails.
func (q *Queries) MarkAutomationRunFailed(ctx context.Context, runID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE automation_runs SET state = $2, updated_at = now() WHERE id = $1
	`, runID, AutomationRunStateFailed)
	if err != nil {
		return fmt.Errorf("marking automation run failed: %w", err)
	}
	return nil
}
