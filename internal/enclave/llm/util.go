package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

type modelPricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// pricingForModel knows the prices of two provider models. An
// unrecognized model returns ok=false and cost estimation is skipped
// rather than guessed.
func pricingForModel(model string) (modelPricing, bool) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(normalized, "openai/gpt-4o-mini"):
		return modelPricing{inputPerMillion: 0.15, outputPerMillion: 0.60}, true
	case strings.HasPrefix(normalized, "anthropic/claude-3.5-haiku"):
		return modelPricing{inputPerMillion: 0.80, outputPerMillion: 4.00}, true
	default:
		return modelPricing{}, false
	}
}

// EstimateCostUSD estimates the dollar cost of a response from its
// reported token usage, or returns (0, false) if usage or pricing is
// unavailable.
func EstimateCostUSD(resp *GatewayResponse) (float64, bool) {
	if resp == nil || resp.Usage == nil {
		return 0, false
	}
	pricing, ok := pricingForModel(resp.Model)
	if !ok {
		return 0, false
	}
	prompt := float64(resp.Usage.PromptTokens)
	completion := float64(resp.Usage.CompletionTokens)
	cost := (prompt*pricing.inputPerMillion + completion*pricing.outputPerMillion) / 1_000_000.0
	return cost, true
}

type cacheKeyPayload struct {
	RequesterID     string          `json:"requester_id"`
	Capability      Capability      `json:"capability"`
	ContractVersion string          `json:"contract_version"`
	SystemPrompt    string          `json:"system_prompt"`
	ContextPrompt   string          `json:"context_prompt"`
	OutputSchema    json.RawMessage `json:"output_schema"`
	ContextPayload  json.RawMessage `json:"context_payload"`
}

// CacheKey derives a stable cache key from every field that affects the
// model's output, so two requests differing only in, say, requester_id's
// casing are treated as distinct (matching the original's exact-bytes
// serialization approach).
func CacheKey(req GatewayRequest) string {
	payload := cacheKeyPayload{
		RequesterID:     req.RequesterID,
		Capability:      req.Capability,
		ContractVersion: req.ContractVersion,
		SystemPrompt:    req.SystemPrompt,
		ContextPrompt:   req.ContextPrompt,
		OutputSchema:    req.OutputSchema,
		ContextPayload:  req.ContextPayload,
	}
	serialized, _ := json.Marshal(payload)
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:])
}
