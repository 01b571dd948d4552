package llm

import (
	"context"
	"time"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/telemetry"
)

// ReliableGateway wraps a concrete Gateway with the guarded rate limit,
// circuit breaker, response cache, and cost budget state every call must
// pass through before (and after) reaching the provider.
type ReliableGateway struct {
	provider Gateway
	state    *ReliabilityState
	cfg      ReliabilityConfig
}

// NewReliableGateway builds a ReliableGateway around provider.
func NewReliableGateway(provider Gateway, state *ReliabilityState, cfg ReliabilityConfig) *ReliableGateway {
	return &ReliableGateway{provider: provider, state: state, cfg: cfg}
}

// Generate checks the cache, rate limits, and circuit breaker before
// calling the wrapped provider, then records the outcome and caches a
// successful response. It never calls the provider once the cost budget
// for the window is exhausted — it returns apperr.KindRateLimited so
// callers treat budget exhaustion the same as a rate limit.
func (g *ReliableGateway) Generate(ctx context.Context, req GatewayRequest) (*GatewayResponse, error) {
	now := time.Now()
	key := CacheKey(req)

	if cached := g.state.CachedResponse(key, now); cached != nil {
		return cached, nil
	}

	if rejection := g.state.CheckRateLimits(req.RequesterID, now, g.cfg); rejection != nil {
		return nil, apperr.New(apperr.KindRateLimited, "llm_rate_limited", "llm request rejected: "+rejection.Scope+" rate limit exceeded")
	}

	if retryAfter := g.state.CircuitBreakerRetryAfter(now); retryAfter > 0 {
		telemetry.LLMProviderCircuitState.Set(1)
		return nil, apperr.New(apperr.KindUpstreamUnavailable, "llm_circuit_open", "llm provider circuit breaker is open")
	}
	telemetry.LLMProviderCircuitState.Set(0)

	if g.state.ShouldUseBudgetGateway(now, g.cfg) {
		return nil, apperr.New(apperr.KindRateLimited, "llm_budget_exhausted", "llm cost budget exhausted for the current window")
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		g.state.RecordProviderFailure(now, g.cfg)
		return nil, apperr.Wrap(apperr.KindProviderFailed, "llm_provider_failed", err)
	}
	g.state.RecordProviderSuccess()

	if cost, ok := EstimateCostUSD(resp); ok {
		g.state.RecordBudgetSpend(now, g.cfg, cost)
	}

	g.state.StoreCachedResponse(key, resp, now, g.cfg)
	return resp, nil
}
