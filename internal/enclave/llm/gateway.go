// Package llm implements the enclave's model-provider gateway: a trait-like
// interface, per-capability output-contract versions, and the mutex-guarded
// reliability state (rate limits, circuit breaker, response cache, cost
// budget) that wraps every call.
package llm

import (
	"context"
	"encoding/json"
)

// Capability is a distinct LLM call shape with its own contract version.
type Capability string

const (
	CapabilityMeetingsSummary       Capability = "meetings_summary"
	CapabilityMorningBrief          Capability = "morning_brief"
	CapabilityUrgentEmailSummary    Capability = "urgent_email_summary"
	CapabilityAssistantSemanticPlan Capability = "assistant_semantic_plan"
)

// GatewayRequest is one call to the model provider.
type GatewayRequest struct {
	RequesterID      string
	Capability       Capability
	ContractVersion  string
	SystemPrompt     string
	ContextPrompt    string
	OutputSchema     json.RawMessage
	ContextPayload   json.RawMessage
}

// TokenUsage reports provider-billed token counts, used for cost estimation.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// GatewayResponse is the model provider's raw output plus billing metadata.
type GatewayResponse struct {
	Model            string
	ProviderRequestID string
	Output           json.RawMessage
	Usage            *TokenUsage
}

// Gateway is implemented by a concrete model provider client.
type Gateway interface {
	Generate(ctx context.Context, req GatewayRequest) (*GatewayResponse, error)
}

// ContractVersions pins the output-contract version each capability must
// be called with. A provider response tagged for a different version is
// rejected as apperr.KindContractRejected by the caller.
var ContractVersions = map[Capability]string{
	CapabilityMeetingsSummary:       "2024-01",
	CapabilityMorningBrief:          "2024-01",
	CapabilityUrgentEmailSummary:    "2024-01",
	CapabilityAssistantSemanticPlan: "2024-02",
}
