package orchestrator

import (
	"context"
	"time"

	"github.com/alfredhq/backend/internal/enclave"
)

// GoogleFetcher is the subset of the enclave's Google client the
// orchestrator needs, kept as an interface so lanes can be tested without
// a live Google connection.
type GoogleFetcher interface {
	ResolveAccessToken(ctx context.Context, userID string) (accessToken string, err error)
	FetchCalendarEvents(ctx context.Context, accessToken string, timeMin, timeMax time.Time, maxResults int) ([]enclave.CalendarEvent, error)
	FetchEmailCandidates(ctx context.Context, accessToken, query string, maxResults int) ([]enclave.EmailCandidate, error)
}

// Planner calls the LLM with the semantic-plan contract. A planner error
// or an invalid contract triggers the keyword-detector fallback.
type Planner interface {
	Plan(ctx context.Context, query string, memory *SessionMemory) (*enclave.SemanticPlan, error)
}

// Request is one orchestrator invocation, already decrypted from the
// client's request envelope.
type Request struct {
	RequestID string
	UserID    string
	Query     string
	Memory    *SessionMemory
	Now       time.Time
}

// Result is the orchestrator's full output: the response to seal back to
// the client, the updated memory to seal into the session state envelope,
// and the per-stage latency instrumentation.
type Result struct {
	Response *enclave.AssistantResponse
	Memory   *SessionMemory
	Latency  enclave.OrchestratorLatency
}

// Run executes the full state machine: fast path, planner + fallback,
// route policy, lane dispatch, and memory update. google and planner may
// be nil for lanes that don't need them (tests exercise lanes directly).
func Run(ctx context.Context, req Request, google GoogleFetcher, planner Planner) (*Result, error) {
	totalStart := req.Now

	if staticReply, ok := DetectFastPath(req.Query); ok {
		resp := chatResponse(staticReply)
		memory := AppendTurn(req.Memory, req.Query, staticReply, enclave.CapabilityGeneralChat, req.Now)
		return &Result{
			Response: resp,
			Memory:   memory,
			Latency:  enclave.OrchestratorLatency{TotalOrchestratorMs: elapsedMs(totalStart, req.Now)},
		}, nil
	}

	plannerStart := time.Now()
	plan, usedFallback := resolvePlan(ctx, req, planner)
	plannerMs := elapsedMs(plannerStart, time.Now())

	laneStart := time.Now()
	resp, laneLatency := dispatchLane(ctx, req, plan, google)
	laneLatency.UsedDeterministicFallback = usedFallback
	laneMs := elapsedMs(laneStart, time.Now())

	var capability enclave.Capability = enclave.CapabilityGeneralChat
	if len(plan.Capabilities) > 0 {
		capability = plan.Capabilities[0]
	}
	memory := AppendTurn(req.Memory, req.Query, resp.DisplayText, capability, req.Now)

	return &Result{
		Response: resp,
		Memory:   memory,
		Latency: enclave.OrchestratorLatency{
			PlannerStageMs:      plannerMs,
			LaneStageMs:         laneMs,
			TotalOrchestratorMs: elapsedMs(totalStart, time.Now()),
			Lane:                laneLatency,
		},
	}, nil
}

func resolvePlan(ctx context.Context, req Request, planner Planner) (*enclave.SemanticPlan, bool) {
	if planner != nil {
		if plan, err := planner.Plan(ctx, req.Query, req.Memory); err == nil {
			if normErr := NormalizePlan(plan); normErr == nil {
				return plan, false
			}
		}
	}

	prevCap, hasPrev := PreviousCapability(req.Memory)
	cap := KeywordDetect(req.Query, prevCap, hasPrev)
	return &enclave.SemanticPlan{Capabilities: []enclave.Capability{cap}}, true
}

func dispatchLane(ctx context.Context, req Request, plan *enclave.SemanticPlan, google GoogleFetcher) (*enclave.AssistantResponse, enclave.LaneLatency) {
	if plan.NeedsClarification && plan.ClarifyingQuestion != nil {
		return chatResponse(*plan.ClarifyingQuestion), enclave.LaneLatency{}
	}

	capability := enclave.CapabilityGeneralChat
	if len(plan.Capabilities) > 0 {
		capability = plan.Capabilities[0]
	}

	window := windowOrDefault(plan.TimeWindow, req.Now)

	switch capability {
	case enclave.CapabilityCalendarLookup:
		return calendarLane(ctx, req, google, window)
	case enclave.CapabilityEmailLookup:
		return emailLane(ctx, req, google, window, plan.EmailFilters)
	case enclave.CapabilityMixed:
		return mixedLane(ctx, req, google, window, plan.EmailFilters)
	default:
		return chatResponse("I can help with your calendar, email, or just chat — what do you need?"), enclave.LaneLatency{}
	}
}

func calendarLane(ctx context.Context, req Request, google GoogleFetcher, window enclave.TimeWindow) (*enclave.AssistantResponse, enclave.LaneLatency) {
	var latency enclave.LaneLatency
	if google == nil {
		latency.UsedDeterministicFallback = true
		return chatResponse("I couldn't reach your calendar connector right now."), latency
	}

	resolveStart := time.Now()
	accessToken, err := google.ResolveAccessToken(ctx, req.UserID)
	latency.ConnectorResolveMs = elapsedMs(resolveStart, time.Now())
	if err != nil {
		return chatResponse("I couldn't reach your calendar connector right now."), latency
	}

	fetchStart := time.Now()
	events, err := google.FetchCalendarEvents(ctx, accessToken, window.Start, window.End, calendarMaxResults)
	latency.CalendarFetchMs = elapsedMs(fetchStart, time.Now())
	if err != nil {
		return chatResponse("I couldn't load your calendar events right now."), latency
	}

	payload := BuildCalendarPayload(events, window)
	return payloadResponse(payload), latency
}

func emailLane(ctx context.Context, req Request, google GoogleFetcher, window enclave.TimeWindow, filters *enclave.EmailFilters) (*enclave.AssistantResponse, enclave.LaneLatency) {
	var latency enclave.LaneLatency
	if google == nil {
		latency.UsedDeterministicFallback = true
		return chatResponse("I couldn't reach your email connector right now."), latency
	}

	resolveStart := time.Now()
	accessToken, err := google.ResolveAccessToken(ctx, req.UserID)
	latency.ConnectorResolveMs = elapsedMs(resolveStart, time.Now())
	if err != nil {
		return chatResponse("I couldn't reach your email connector right now."), latency
	}

	fetchStart := time.Now()
	candidates, err := google.FetchEmailCandidates(ctx, accessToken, "", emailMaxResults)
	latency.EmailFetchMs = elapsedMs(fetchStart, time.Now())
	if err != nil {
		return chatResponse("I couldn't load your email right now."), latency
	}

	filterStart := time.Now()
	filtered := FilterEmails(candidates, filters, &window)
	latency.EmailFilterMs = elapsedMs(filterStart, time.Now())

	payload := BuildEmailPayload(filtered)
	return payloadResponse(payload), latency
}

func mixedLane(ctx context.Context, req Request, google GoogleFetcher, window enclave.TimeWindow, filters *enclave.EmailFilters) (*enclave.AssistantResponse, enclave.LaneLatency) {
	calResp, calLatency := calendarLane(ctx, req, google, window)
	emailResp, emailLatency := emailLane(ctx, req, google, window, filters)

	merged := enclave.LaneLatency{
		ConnectorResolveMs: calLatency.ConnectorResolveMs + emailLatency.ConnectorResolveMs,
		CalendarFetchMs:    calLatency.CalendarFetchMs,
		EmailFetchMs:       emailLatency.EmailFetchMs,
		EmailFilterMs:      emailLatency.EmailFilterMs,
	}

	calPayload := payloadFromResponse(calResp)
	emailPayload := payloadFromResponse(emailResp)
	return payloadResponse(BuildMixedPayload(calPayload, emailPayload)), merged
}

func windowOrDefault(w *enclave.TimeWindow, now time.Time) enclave.TimeWindow {
	var window enclave.TimeWindow
	if w != nil {
		window = *w
	} else {
		window = enclave.TimeWindow{
			Start:            now,
			End:              now.Add(24 * time.Hour),
			Timezone:         "UTC",
			ResolutionSource: "default",
		}
	}
	window.Label = ResolveWindowLabel(window, now)
	return window
}

func chatResponse(text string) *enclave.AssistantResponse {
	return &enclave.AssistantResponse{
		DisplayText: text,
		Parts:       []enclave.AssistantResponsePart{{Kind: "text", Content: text}},
	}
}

func payloadResponse(p GroundedPayload) *enclave.AssistantResponse {
	return &enclave.AssistantResponse{
		DisplayText: p.Summary,
		Parts:       []enclave.AssistantResponsePart{{Kind: "text", Content: p.Summary}},
		Payload: map[string]any{
			"title":      p.Title,
			"summary":    p.Summary,
			"key_points": p.KeyPoints,
			"follow_ups": p.FollowUps,
		},
	}
}

func payloadFromResponse(resp *enclave.AssistantResponse) GroundedPayload {
	if resp == nil || resp.Payload == nil {
		return GroundedPayload{Summary: resp.DisplayText}
	}
	p := GroundedPayload{Summary: resp.DisplayText}
	if title, ok := resp.Payload["title"].(string); ok {
		p.Title = title
	}
	if kp, ok := resp.Payload["key_points"].([]string); ok {
		p.KeyPoints = kp
	}
	return p
}

func elapsedMs(start, end time.Time) int64 {
	return end.Sub(start).Milliseconds()
}
