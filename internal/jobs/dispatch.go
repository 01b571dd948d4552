package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/store"
)

// processAutomationRunRequest is the wire contract for the enclave's
// process_automation_run RPC: the worker has already decrypted the
// rule's prompt and hands it over in plaintext, since automation prompts
// are host-safe data (see store.EncryptForStorage), but the LLM call
// itself still only ever happens inside the enclave.
type processAutomationRunRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	RuleID    uuid.UUID `json:"rule_id"`
	Prompt    string    `json:"prompt"`
	RequestID string    `json:"request_id,omitempty"`
}

type generateMorningBriefRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
}

type generateUrgentEmailSummaryRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
}

// notificationResult is the shared response shape every enclave
// generation RPC returns: the rendered push title/body for the worker to
// deliver. The enclave is responsible for grounding and length limits;
// the worker treats this as opaque display text.
type notificationResult struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// resolveNotification dispatches a claimed job to whatever produces its
// push content. A "notification" payload is already rendered and skips
// the enclave entirely; everything else resolves via the job's JobType.
func (w *Worker) resolveNotification(ctx context.Context, job store.Job, payload jobPayload) (*notificationResult, error) {
	if payload.Kind == payloadKindNotification {
		if payload.Notification == nil {
			return nil, apperr.New(apperr.KindPermanent, "job_payload_missing_notification", "notification payload missing title/body")
		}
		return &notificationResult{Title: payload.Notification.Title, Body: payload.Notification.Body}, nil
	}

	switch job.JobType {
	case store.JobTypeAutomationRun:
		if payload.RuleID == nil {
			return nil, apperr.New(apperr.KindPermanent, "job_payload_missing_rule_id", "automation_prompt payload missing rule_id")
		}
		rule, err := w.store.GetAutomationRule(ctx, *payload.RuleID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "automation_rule_not_found", err)
		}
		prompt, err := w.store.DecryptValue(ctx, rule.PromptCiphertext, w.dataEncryptionKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "automation_prompt_decrypt_failed", err)
		}

		var resp notificationResult
		if err := w.rpc.Call(ctx, "/process_automation_run", processAutomationRunRequest{
			UserID:    job.UserID,
			RuleID:    *payload.RuleID,
			Prompt:    prompt,
			RequestID: payload.Trace.RequestID,
		}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil

	case store.JobTypeMorningBrief:
		var resp notificationResult
		if err := w.rpc.Call(ctx, "/generate_morning_brief", generateMorningBriefRequest{
			UserID:    job.UserID,
			RequestID: payload.Trace.RequestID,
		}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil

	case store.JobTypeUrgentEmailCheck:
		var resp notificationResult
		if err := w.rpc.Call(ctx, "/generate_urgent_email_summary", generateUrgentEmailSummaryRequest{
			UserID:    job.UserID,
			RequestID: payload.Trace.RequestID,
		}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil

	default:
		return nil, apperr.New(apperr.KindPermanent, "unknown_job_type", fmt.Sprintf("no dispatch route for job type %q", job.JobType))
	}
}

func simulatedFailure(kind string) error {
	if kind == "transient" {
		return apperr.New(apperr.KindTransient, "SIMULATED_TRANSIENT_FAILURE", "simulated transient failure")
	}
	return apperr.New(apperr.KindPermanent, "SIMULATED_PERMANENT_FAILURE", "simulated permanent failure")
}
