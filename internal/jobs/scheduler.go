package jobs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/store"
	"github.com/alfredhq/backend/internal/telemetry"
)

// Scheduler claims due automation rules, materializes runs, and enqueues
// the jobs that dispatch them. It mirrors the teacher's tick-loop shape
// (ticker + select, one tick() pass claiming a batch) but drops the
// per-tenant iteration Alfred has no equivalent of.
type Scheduler struct {
	store    *store.Queries
	logger   *slog.Logger
	workerID string
	interval time.Duration

	batchSize         int
	leaseSeconds      int64
	dataEncryptionKey string
}

// NewScheduler builds a Scheduler. workerID should be stable per process
// replica (e.g. hostname:pid) so lease ownership checks are meaningful.
func NewScheduler(q *store.Queries, logger *slog.Logger, workerID string, interval time.Duration, batchSize int, leaseSeconds int64, dataEncryptionKey string) *Scheduler {
	return &Scheduler{
		store:             q,
		logger:            logger,
		workerID:          workerID,
		interval:          interval,
		batchSize:         batchSize,
		leaseSeconds:      leaseSeconds,
		dataEncryptionKey: dataEncryptionKey,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	now := time.Now().UTC()
	rules, err := s.store.ClaimDueAutomationRules(ctx, now, s.workerID, s.batchSize, s.leaseSeconds)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		s.materialize(ctx, rule, now)
	}
	return nil
}

func (s *Scheduler) materialize(ctx context.Context, rule store.AutomationRule, now time.Time) {
	scheduledFor := rule.NextRunAt
	nextRunAt := now.Add(time.Duration(rule.IntervalSeconds) * time.Second)
	idempotencyKey := automationIdempotencyKey(rule.ID, scheduledFor)

	run, err := s.store.MaterializeAutomationRun(ctx, rule.ID, s.workerID, scheduledFor, nextRunAt, idempotencyKey)
	if err != nil {
		s.logger.Error("materializing automation run", "rule_id", rule.ID, "error", err)
		return
	}
	if run == nil {
		// Lease was lost to another worker between claim and
		// materialize; skip quietly, the other worker owns it now.
		s.logger.Warn("automation rule lease lost before materialize", "rule_id", rule.ID)
		return
	}

	ruleID := rule.ID
	payload, err := encryptJobPayload(ctx, s.store, jobPayload{
		Kind:   payloadKindAutomationPrompt,
		RuleID: &ruleID,
	}, s.dataEncryptionKey)
	if err != nil {
		s.logger.Error("encrypting automation job payload", "rule_id", rule.ID, "error", err)
		_ = s.store.MarkAutomationRunFailed(ctx, run.ID)
		return
	}

	job, err := s.store.EnqueueJob(ctx, store.EnqueueJobParams{
		UserID:            rule.UserID,
		JobType:           store.JobTypeAutomationRun,
		DueAt:             scheduledFor,
		IdempotencyKey:    &idempotencyKey,
		PayloadCiphertext: payload,
	})
	if err != nil {
		s.logger.Error("enqueueing automation job", "rule_id", rule.ID, "error", err)
		_ = s.store.MarkAutomationRunFailed(ctx, run.ID)
		return
	}

	if err := s.store.MarkAutomationRunEnqueued(ctx, run.ID, job.ID); err != nil {
		s.logger.Error("marking automation run enqueued", "rule_id", rule.ID, "run_id", run.ID, "error", err)
		return
	}

	telemetry.AutomationRunsMaterializedTotal.Inc()
}

// automationIdempotencyKey is deterministic per (rule, scheduled_for),
// taken verbatim as scheduled_for_microseconds, so two workers racing to
// materialize the same firing can never enqueue two jobs for it.
func automationIdempotencyKey(ruleID uuid.UUID, scheduledFor time.Time) string {
	return ruleID.String() + ":" + strconv.FormatInt(scheduledFor.UTC().UnixMicro(), 10)
}
