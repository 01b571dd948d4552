package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/jobs/push"
	"github.com/alfredhq/backend/internal/ops"
	"github.com/alfredhq/backend/internal/store"
	"github.com/alfredhq/backend/internal/telemetry"
)

// Worker claims due jobs and drives them through dispatch, push delivery,
// retry, and dead-lettering. Its claim loop mirrors Scheduler's: a
// ticker firing tick(), which leases a batch with SELECT ... FOR UPDATE
// SKIP LOCKED and processes each job serially.
type Worker struct {
	store  *store.Queries
	audit  *audit.Writer
	rpc    *enclave.RPCClient
	push   *push.Sender
	ops    *ops.Notifier
	logger *slog.Logger

	workerID          string
	interval          time.Duration
	batchSize         int
	leaseSeconds      int64
	dataEncryptionKey string

	retryBaseSeconds int64
	retryMaxSeconds  int64
	retryMaxAttempts int
}

// WorkerConfig bundles Worker's dependencies and retry knobs, mirroring
// config.Config's worker/retry fields one to one.
type WorkerConfig struct {
	Store             *store.Queries
	Audit             *audit.Writer
	RPC               *enclave.RPCClient
	Push              *push.Sender
	Ops               *ops.Notifier
	Logger            *slog.Logger
	WorkerID          string
	Interval          time.Duration
	BatchSize         int
	LeaseSeconds      int64
	DataEncryptionKey string
	RetryBaseSeconds  int64
	RetryMaxSeconds   int64
	RetryMaxAttempts  int
}

// NewWorker builds a Worker from cfg.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		store:             cfg.Store,
		audit:             cfg.Audit,
		rpc:               cfg.RPC,
		push:              cfg.Push,
		ops:               cfg.Ops,
		logger:            cfg.Logger,
		workerID:          cfg.WorkerID,
		interval:          cfg.Interval,
		batchSize:         cfg.BatchSize,
		leaseSeconds:      cfg.LeaseSeconds,
		dataEncryptionKey: cfg.DataEncryptionKey,
		retryBaseSeconds:  cfg.RetryBaseSeconds,
		retryMaxSeconds:   cfg.RetryMaxSeconds,
		retryMaxAttempts:  cfg.RetryMaxAttempts,
	}
}

// Run ticks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("worker tick failed", "error", err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	now := time.Now().UTC()
	claimed, err := w.store.ClaimDueJobs(ctx, now, w.workerID, w.batchSize, w.leaseSeconds)
	if err != nil {
		return err
	}

	for _, job := range claimed {
		telemetry.JobsClaimedTotal.WithLabelValues(string(job.JobType)).Inc()
		w.process(ctx, job)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job store.Job) {
	payload, err := decryptJobPayload(ctx, w.store, job.PayloadCiphertext, w.dataEncryptionKey)
	if err != nil {
		w.fail(ctx, job, apperr.Wrap(apperr.KindPermanent, "job_payload_decrypt_failed", err))
		return
	}

	if payload.Kind == payloadKindSimulatedFailure {
		w.fail(ctx, job, simulatedFailure(payload.SimulatedFailureKind))
		return
	}

	notification, err := w.resolveNotification(ctx, job, payload)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	result, deliverErr := w.deliverPush(ctx, job.UserID, *notification)
	if deliverErr != nil {
		w.fail(ctx, job, deliverErr)
		return
	}
	if result == nil {
		result = &push.Result{PayloadMode: "plain"}
	}

	if err := w.store.MarkJobDone(ctx, job.ID); err != nil {
		w.logger.Error("marking job done", "job_id", job.ID, "error", err)
		return
	}

	w.audit.Log(audit.Entry{
		UserID:    job.UserID,
		EventType: "job_dispatched",
		Result:    store.AuditResultSuccess,
		Metadata: map[string]any{
			"job_id":            job.ID.String(),
			"job_type":          string(job.JobType),
			"outcome":           "DONE",
			"request_id":        payload.Trace.RequestID,
			"push_payload_mode": result.PayloadMode,
		},
	})
}

// deliverPush decrypts every registered device's token and attempts
// delivery; any per-device decrypt failure is treated as that device
// simply not receiving the push rather than failing the whole job. No
// registered devices is not an error: the job is still considered done.
func (w *Worker) deliverPush(ctx context.Context, userID uuid.UUID, notification notificationResult) (*push.Result, error) {
	devices, err := w.store.ListDevicesForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "device_list_failed", err)
	}

	targets := make([]push.Target, 0, len(devices))
	for _, d := range devices {
		token, err := w.store.DecryptValue(ctx, d.APNsTokenCiphertext, w.dataEncryptionKey)
		if err != nil {
			w.logger.Warn("decrypting device token, skipping device", "device_id", d.ID, "error", err)
			continue
		}
		env := push.EnvironmentProduction
		if d.Environment == store.ApnsEnvironmentSandbox {
			env = push.EnvironmentSandbox
		}
		targets = append(targets, push.Target{DeviceID: d.ID, Token: token, Environment: env})
	}

	// No per-device envelope key registry exists yet (see Device in
	// internal/store/types.go), so every delivery currently falls back
	// to the plaintext alert.
	result, appErr := w.push.Deliver(ctx, targets, push.Notification{Title: notification.Title, Body: notification.Body}, nil)
	if appErr != nil {
		return result, appErr
	}
	telemetry.PushDeliveriesTotal.WithLabelValues(outcomeLabel(result)).Inc()
	return result, nil
}

func outcomeLabel(result *push.Result) string {
	if result != nil && result.Delivered {
		return "success"
	}
	return "no_devices"
}

func (w *Worker) fail(ctx context.Context, job store.Job, err error) {
	kind := apperr.KindOf(err)
	code := "job_failed"
	if ae, ok := apperr.As(err); ok {
		code = ae.Code
	}

	if apperr.IsRetryable(kind) && job.Attempts+1 < w.retryMaxAttempts {
		delay := w.backoff(job.Attempts + 1)
		if rerr := w.store.ScheduleJobRetry(ctx, job.ID, err.Error(), time.Now().UTC().Add(delay)); rerr != nil {
			w.logger.Error("scheduling job retry", "job_id", job.ID, "error", rerr)
			return
		}
		telemetry.JobsRetriedTotal.WithLabelValues(string(job.JobType)).Inc()
		w.audit.Log(audit.Entry{
			UserID:    job.UserID,
			EventType: "job_dispatched",
			Result:    store.AuditResultFailure,
			Metadata: map[string]any{
				"job_id":         job.ID.String(),
				"job_type":       string(job.JobType),
				"outcome":        "RETRY_SCHEDULED",
				"failure_reason": code,
			},
		})
		return
	}

	if derr := w.store.DeadLetterJob(ctx, job.ID, err.Error()); derr != nil {
		w.logger.Error("dead-lettering job", "job_id", job.ID, "error", derr)
		return
	}
	telemetry.JobsDeadLetteredTotal.WithLabelValues(string(job.JobType), code).Inc()
	w.audit.Log(audit.Entry{
		UserID:    job.UserID,
		EventType: "job_dispatched",
		Result:    store.AuditResultFailure,
		Metadata: map[string]any{
			"job_id":         job.ID.String(),
			"job_type":       string(job.JobType),
			"outcome":        "DEAD_LETTERED",
			"failure_reason": code,
		},
	})

	if w.ops != nil {
		w.ops.NotifyDeadLetter(ctx, string(job.JobType), job.ID.String(), code)
	}
}

// backoff computes the delay before retry N, capped at retryMaxSeconds:
// base * 2^(attempt-1).
func (w *Worker) backoff(attempt int) time.Duration {
	seconds := w.retryBaseSeconds
	for i := 1; i < attempt; i++ {
		seconds *= 2
		if seconds >= w.retryMaxSeconds {
			seconds = w.retryMaxSeconds
			break
		}
	}
	return time.Duration(seconds) * time.Second
}
