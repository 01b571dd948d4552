package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAutomationRuleParams carries the fields supplied when a user
// defines a new automation. The prompt is encrypted host-side via
// EncryptForStorage before this query ever sees it. The job engine
// (internal/jobs) is the only reader that later calls DecryptValue on
// this column, at dispatch time, to hand the plaintext prompt to the
// enclave's process_automation_run RPC.
type CreateAutomationRuleParams struct {
	UserID           uuid.UUID
	IntervalSeconds  int64
	TimeZone         string
	NextRunAt        time.Time
	PromptCiphertext []byte
	PromptPlaintext  string
}

// CreateAutomationRule inserts a new ACTIVE automation rule. Callers
// must have already produced PromptCiphertext via EncryptForStorage;
// PromptPlaintext is only used here to compute the integrity digest and
// is never persisted.
func (q *Queries) CreateAutomationRule(ctx context.Context, p CreateAutomationRuleParams) (*AutomationRule, error) {
	sum := sha256.Sum256([]byte(p.PromptPlaintext))
	promptSHA256 := hex.EncodeToString(sum[:])

	row := q.db.QueryRow(ctx, `
		INSERT INTO automation_rules (user_id, interval_seconds, time_zone, next_run_at, status, prompt_ciphertext, prompt_sha256)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, user_id, interval_seconds, time_zone, next_run_at, lease_owner, lease_expires_at, status, prompt_ciphertext, prompt_sha256, last_run_at, created_at, updated_at
	`, p.UserID, p.IntervalSeconds, p.TimeZone, p.NextRunAt, AutomationRuleStatusActive, p.PromptCiphertext, promptSHA256)

	var r AutomationRule
	if err := row.Scan(&r.ID, &r.UserID, &r.IntervalSeconds, &r.TimeZone, &r.NextRunAt, &r.LeaseOwner, &r.LeaseExpiresAt, &r.Status, &r.PromptCiphertext, &r.PromptSHA256, &r.LastRunAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("creating automation rule: %w", err)
	}
	return &r, nil
}

// ListAutomationRulesForUser returns every rule belonging to a user,
// newest first. hostapi never decrypts PromptCiphertext; only the job
// engine does, at dispatch time.
func (q *Queries) ListAutomationRulesForUser(ctx context.Context, userID uuid.UUID) ([]AutomationRule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, interval_seconds, time_zone, next_run_at, lease_owner, lease_expires_at, status, prompt_ciphertext, prompt_sha256, last_run_at, created_at, updated_at
		FROM automation_rules WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing automation rules for user: %w", err)
	}
	defer rows.Close()

	var rules []AutomationRule
	for rows.Next() {
		var r AutomationRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.IntervalSeconds, &r.TimeZone, &r.NextRunAt, &r.LeaseOwner, &r.LeaseExpiresAt, &r.Status, &r.PromptCiphertext, &r.PromptSHA256, &r.LastRunAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning automation rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automation rules: %w", err)
	}
	return rules, nil
}

// GetAutomationRule fetches a rule by id regardless of owner; the job
// engine calls this at dispatch time once it already trusts the rule id
// embedded in a claimed job's payload.
func (q *Queries) GetAutomationRule(ctx context.Context, ruleID uuid.UUID) (*AutomationRule, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, interval_seconds, time_zone, next_run_at, lease_owner, lease_expires_at, status, prompt_ciphertext, prompt_sha256, last_run_at, created_at, updated_at
		FROM automation_rules WHERE id = $1
	`, ruleID)

	var r AutomationRule
	if err := row.Scan(&r.ID, &r.UserID, &r.IntervalSeconds, &r.TimeZone, &r.NextRunAt, &r.LeaseOwner, &r.LeaseExpiresAt, &r.Status, &r.PromptCiphertext, &r.PromptSHA256, &r.LastRunAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("fetching automation rule: %w", err)
	}
	return &r, nil
}

// DeleteAutomationRule removes a rule (and, via FK cascade at the schema
// level, its runs) by id, scoped to userID so one user cannot delete
// another's rule.
func (q *Queries) DeleteAutomationRule(ctx context.Context, userID, ruleID uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1 AND user_id = $2`, ruleID, userID)
	if err != nil {
		return fmt.Errorf("deleting automation rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("automation rule not found for user")
	}
	return nil
}
