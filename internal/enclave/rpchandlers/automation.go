package rpchandlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/enclave/llm"
	"github.com/alfredhq/backend/internal/orchestrator"
)

// These request/response shapes mirror internal/jobs/dispatch.go's
// unexported wire types field for field; the worker and this handler
// agree on the contract through JSON tags alone, never a shared Go type,
// since the worker must never import an enclave-only package.
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

type notificationResult struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *handlerSet) processAutomationRun(w http.ResponseWriter, r *http.Request) {
	var req processAutomationRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "automation_run_invalid", err))
		return
	}

	resp, err := s.gateway.Generate(r.Context(), llm.GatewayRequest{
		RequesterID:     req.UserID.String(),
		Capability:      llm.CapabilityMeetingsSummary,
		ContractVersion: llm.ContractVersions[llm.CapabilityMeetingsSummary],
		SystemPrompt:    "Render a short push notification from this automation rule's prompt and its grounded context.",
		ContextPrompt:   req.Prompt,
	})
	if err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindProviderFailed, "automation_run_generate_failed", err))
		return
	}

	output, err := llm.ParseMeetingsSummaryOutput(resp.Output)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	writeRPCJSON(w, http.StatusOK, notificationResult{Title: output.Title, Body: output.Summary})
}

func (s *handlerSet) generateMorningBrief(w http.ResponseWriter, r *http.Request) {
	var req generateMorningBriefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "morning_brief_invalid", err))
		return
	}

	google := newGoogleFetcherAdapter(s.google, s.store)
	now := time.Now().UTC()
	windowEnd := now.Add(24 * time.Hour)
	window := enclave.TimeWindow{Start: now, End: windowEnd, Timezone: "UTC", ResolutionSource: "morning_brief_default"}
	window.Label = orchestrator.ResolveWindowLabel(window, now)

	var contextPrompt string
	var groundedPayload orchestrator.GroundedPayload
	accessToken, err := google.ResolveAccessToken(r.Context(), req.UserID.String())
	if err != nil {
		contextPrompt = "No calendar connector available."
		groundedPayload = orchestrator.GroundedPayload{Title: "Morning brief", Summary: contextPrompt}
	} else if events, ferr := google.FetchCalendarEvents(r.Context(), accessToken, now, windowEnd, 20); ferr == nil {
		groundedPayload = orchestrator.BuildCalendarPayload(events, window)
		contextPrompt = groundedPayload.Summary
	} else {
		contextPrompt = "Calendar lookup failed."
		groundedPayload = orchestrator.GroundedPayload{Title: "Morning brief", Summary: contextPrompt}
	}

	result, outputSource := s.resolveMorningBrief(r.Context(), req.UserID.String(), contextPrompt, groundedPayload)
	if outputSource == llmOutputSourceFallback {
		s.logger.Warn("morning brief falling back to deterministic output", "user_id", req.UserID)
	}
	writeRPCJSON(w, http.StatusOK, result)
}

// resolveMorningBrief never fails the request: a provider error or a
// contract-validation failure both resolve to the deterministic grounded
// payload instead of dropping the notification.
func (s *handlerSet) resolveMorningBrief(ctx context.Context, userID, contextPrompt string, fallback orchestrator.GroundedPayload) (notificationResult, llmOutputSource) {
	deterministic := notificationResult{Title: fallback.Title, Body: fallback.Summary}

	resp, err := s.gateway.Generate(ctx, llm.GatewayRequest{
		RequesterID:     userID,
		Capability:      llm.CapabilityMorningBrief,
		ContractVersion: llm.ContractVersions[llm.CapabilityMorningBrief],
		SystemPrompt:    "Render a concise morning brief push notification from the day's grounded calendar context.",
		ContextPrompt:   contextPrompt,
	})
	if err != nil {
		return deterministic, llmOutputSourceFallback
	}

	output, err := llm.ParseMorningBriefOutput(resp.Output)
	if err != nil {
		return deterministic, llmOutputSourceFallback
	}

	title, body := llm.NotificationFromMorningBrief(*output)
	return notificationResult{Title: title, Body: body}, llmOutputSourceModel
}

func (s *handlerSet) generateUrgentEmailSummary(w http.ResponseWriter, r *http.Request) {
	var req generateUrgentEmailSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "urgent_email_summary_invalid", err))
		return
	}

	google := newGoogleFetcherAdapter(s.google, s.store)

	var contextPrompt string
	var groundedPayload orchestrator.GroundedPayload
	accessToken, err := google.ResolveAccessToken(r.Context(), req.UserID.String())
	if err != nil {
		contextPrompt = "No email connector available."
		groundedPayload = orchestrator.GroundedPayload{Title: "Email summary", Summary: contextPrompt}
	} else if candidates, ferr := google.FetchEmailCandidates(r.Context(), accessToken, "is:important is:unread", 20); ferr == nil {
		groundedPayload = orchestrator.BuildEmailPayload(candidates)
		contextPrompt = groundedPayload.Summary
	} else {
		contextPrompt = "Email lookup failed."
		groundedPayload = orchestrator.GroundedPayload{Title: "Email summary", Summary: contextPrompt}
	}

	result, outputSource := s.resolveUrgentEmailSummary(r.Context(), req.UserID.String(), contextPrompt, groundedPayload)
	if outputSource == llmOutputSourceFallback {
		s.logger.Warn("urgent email summary falling back to deterministic output", "user_id", req.UserID)
	}
	writeRPCJSON(w, http.StatusOK, result)
}

// resolveUrgentEmailSummary mirrors resolveMorningBrief: a provider error
// or a contract-validation failure both resolve to the deterministic
// grounded payload rather than dropping the notification.
func (s *handlerSet) resolveUrgentEmailSummary(ctx context.Context, userID, contextPrompt string, fallback orchestrator.GroundedPayload) (notificationResult, llmOutputSource) {
	deterministic := notificationResult{Title: fallback.Title, Body: fallback.Summary}

	resp, err := s.gateway.Generate(ctx, llm.GatewayRequest{
		RequesterID:     userID,
		Capability:      llm.CapabilityUrgentEmailSummary,
		ContractVersion: llm.ContractVersions[llm.CapabilityUrgentEmailSummary],
		SystemPrompt:    "Render a concise urgent-email push notification from the grounded email context.",
		ContextPrompt:   contextPrompt,
	})
	if err != nil {
		return deterministic, llmOutputSourceFallback
	}

	output, err := llm.ParseUrgentEmailSummaryOutput(resp.Output)
	if err != nil {
		return deterministic, llmOutputSourceFallback
	}

	title, body := llm.NotificationFromUrgentEmailSummary(*output)
	return notificationResult{Title: title, Body: body}, llmOutputSourceModel
}

// llmOutputSource tracks whether a notification's content came from the
// model or the deterministic grounded fallback, for logging only — it is
// never surfaced to the client.
type llmOutputSource int

const (
	llmOutputSourceModel llmOutputSource = iota
	llmOutputSourceFallback
)
