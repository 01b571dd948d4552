package rpchandlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/enclave/llm"
	"github.com/alfredhq/backend/internal/orchestrator"
)

const semanticPlanSystemPrompt = "Classify the user's query into one assistant capability and extract any time window or email filters it implies. Respond only with the contract JSON."

// plannerAdapter satisfies orchestrator.Planner by shaping a semantic-plan
// GatewayRequest and unmarshaling the provider's contract JSON back into
// enclave.SemanticPlan. orchestrator.Run falls back to keyword detection
// on any error this returns, so failures here are never fatal to a query.
type plannerAdapter struct {
	gateway     llm.Gateway
	requesterID string
}

func newPlannerAdapter(gateway llm.Gateway, requesterID string) *plannerAdapter {
	return &plannerAdapter{gateway: gateway, requesterID: requesterID}
}

func (p *plannerAdapter) Plan(ctx context.Context, query string, memory *orchestrator.SessionMemory) (*enclave.SemanticPlan, error) {
	contextPayload, err := json.Marshal(memory)
	if err != nil {
		return nil, fmt.Errorf("marshaling session memory for planner context: %w", err)
	}

	resp, err := p.gateway.Generate(ctx, llm.GatewayRequest{
		RequesterID:     p.requesterID,
		Capability:      llm.CapabilityAssistantSemanticPlan,
		ContractVersion: llm.ContractVersions[llm.CapabilityAssistantSemanticPlan],
		SystemPrompt:    semanticPlanSystemPrompt,
		ContextPrompt:   query,
		ContextPayload:  contextPayload,
	})
	if err != nil {
		return nil, err
	}

	var plan enclave.SemanticPlan
	if err := json.Unmarshal(resp.Output, &plan); err != nil {
		return nil, fmt.Errorf("unmarshaling semantic plan: %w", err)
	}
	return &plan, nil
}
