package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alfredhq/backend/internal/apperr"
)

// DevShimGateway is a deterministic, local stand-in for a real model
// provider. It never leaves the process: no network call, no API key.
// internal/app wires it for every value of config.LLMProvider, passing
// that value as the model name; no provider-specific Gateway exists in
// this build.
type DevShimGateway struct {
	Model string
}

// NewDevShimGateway builds a DevShimGateway. An empty model name defaults
// to "dev-shim-v1".
func NewDevShimGateway(model string) *DevShimGateway {
	if model == "" {
		model = "dev-shim-v1"
	}
	return &DevShimGateway{Model: model}
}

// Generate returns a contract-shaped response without calling any
// external provider. Only CapabilityAssistantSemanticPlan is given real
// keyword-based logic; the three notification capabilities return a
// fixed, schema-valid skeleton the caller is expected to ground with its
// own context before display.
func (g *DevShimGateway) Generate(ctx context.Context, req GatewayRequest) (*GatewayResponse, error) {
	var output any
	switch req.Capability {
	case CapabilityAssistantSemanticPlan:
		output = devShimSemanticPlan(req.ContextPrompt)
	case CapabilityMeetingsSummary, CapabilityMorningBrief, CapabilityUrgentEmailSummary:
		output = devShimNotification(req.Capability, req.ContextPrompt)
	default:
		return nil, apperr.New(apperr.KindContractRejected, "llm_capability_unsupported", fmt.Sprintf("dev-shim gateway has no handler for capability %q", req.Capability))
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternalError, "llm_dev_shim_marshal_failed", err)
	}

	approxTokens := uint32(len(req.SystemPrompt)+len(req.ContextPrompt)) / 4
	return &GatewayResponse{
		Model:             g.Model,
		ProviderRequestID: "dev-shim-" + req.Capability.String(),
		Output:            raw,
		Usage: &TokenUsage{
			PromptTokens:     approxTokens,
			CompletionTokens: approxTokens / 2,
			TotalTokens:      approxTokens + approxTokens/2,
		},
	}, nil
}

func devShimSemanticPlan(query string) map[string]any {
	lower := strings.ToLower(query)
	capability := "general_chat"
	switch {
	case strings.Contains(lower, "calendar") || strings.Contains(lower, "meeting") || strings.Contains(lower, "schedule"):
		capability = "calendar_lookup"
	case strings.Contains(lower, "email") || strings.Contains(lower, "inbox") || strings.Contains(lower, "message"):
		capability = "email_lookup"
	}
	return map[string]any{
		"capabilities":        []string{capability},
		"confidence":          0.55,
		"needs_clarification": false,
		"language":            "en",
	}
}

// devShimNotification builds a contract-shaped, schema-valid skeleton per
// capability. The grounded context string becomes the contract's main
// narrative field; the caller still grounds title/body from its own
// already-fetched data rather than trusting this verbatim.
func devShimNotification(capability Capability, context string) any {
	body := strings.TrimSpace(context)
	if body == "" {
		body = "Nothing new to report."
	}

	switch capability {
	case CapabilityMeetingsSummary:
		return MeetingsSummaryOutput{
			Version: ContractVersions[capability],
			Title:   "Meeting summary",
			Summary: body,
		}
	case CapabilityMorningBrief:
		return MorningBriefOutput{
			Version:  ContractVersions[capability],
			Headline: "Morning brief",
			Summary:  body,
		}
	case CapabilityUrgentEmailSummary:
		return UrgentEmailSummaryOutput{
			Version:      ContractVersions[capability],
			ShouldNotify: true,
			Urgency:      "medium",
			Summary:      body,
		}
	default:
		return map[string]any{"version": ContractVersions[capability], "title": "Update", "body": body}
	}
}

func (c Capability) String() string { return string(c) }
