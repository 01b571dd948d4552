package llm

import (
	"testing"
	"time"
)

func testReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		RateLimitWindow:                time.Minute,
		RateLimitGlobalMaxRequests:     2,
		RateLimitPerUserMaxRequests:    1,
		CircuitBreakerFailureThreshold: 3,
		CircuitBreakerCooldown:         30 * time.Second,
		CacheTTL:                       time.Minute,
		CacheMaxEntries:                2,
		BudgetWindow:                   time.Hour,
		BudgetMaxEstimatedCostUSD:      1.0,
	}
}

func TestCheckRateLimits_PerUserExhausted(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(1000, 0)
	state := NewReliabilityState(now)

	if rej := state.CheckRateLimits("user-1", now, cfg); rej != nil {
		t.Fatalf("first request should not be rejected, got %+v", rej)
	}

	rej := state.CheckRateLimits("user-1", now, cfg)
	if rej == nil {
		t.Fatal("expected second request from same user to be rate limited")
	}
	if rej.Scope != "user" {
		t.Errorf("scope = %q, want %q", rej.Scope, "user")
	}
	if rej.RetryAfter <= 0 {
		t.Errorf("retry after = %v, want positive", rej.RetryAfter)
	}
}

func TestCheckRateLimits_GlobalExhausted(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(2000, 0)
	state := NewReliabilityState(now)

	if rej := state.CheckRateLimits("user-a", now, cfg); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if rej := state.CheckRateLimits("user-b", now, cfg); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}

	rej := state.CheckRateLimits("user-c", now, cfg)
	if rej == nil {
		t.Fatal("expected third distinct user to trip the global limit")
	}
	if rej.Scope != "global" {
		t.Errorf("scope = %q, want %q", rej.Scope, "global")
	}
}

func TestCheckRateLimits_WindowResets(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(3000, 0)
	state := NewReliabilityState(now)

	state.CheckRateLimits("user-1", now, cfg)
	later := now.Add(cfg.RateLimitWindow + time.Second)
	if rej := state.CheckRateLimits("user-1", later, cfg); rej != nil {
		t.Fatalf("expected window rollover to clear the limit, got %+v", rej)
	}
}

func TestCachedResponse_ExpiresAndEvicts(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(4000, 0)
	state := NewReliabilityState(now)

	resp := &GatewayResponse{Model: "dev-shim", Output: []byte(`{"ok":true}`)}
	state.StoreCachedResponse("key-1", resp, now, cfg)

	if got := state.CachedResponse("key-1", now); got != resp {
		t.Fatalf("expected cached response to be returned fresh")
	}

	expired := now.Add(cfg.CacheTTL + time.Second)
	if got := state.CachedResponse("key-1", expired); got != nil {
		t.Fatalf("expected expired cache entry to return nil, got %+v", got)
	}
}

func TestStoreCachedResponse_EvictsOldestOverCapacity(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(5000, 0)
	state := NewReliabilityState(now)

	state.StoreCachedResponse("a", &GatewayResponse{Model: "a"}, now, cfg)
	state.StoreCachedResponse("b", &GatewayResponse{Model: "b"}, now, cfg)
	state.StoreCachedResponse("c", &GatewayResponse{Model: "c"}, now, cfg)

	if got := state.CachedResponse("a", now); got != nil {
		t.Errorf("expected oldest entry %q to be evicted once over capacity", "a")
	}
	if got := state.CachedResponse("c", now); got == nil {
		t.Errorf("expected most recently stored entry %q to survive", "c")
	}
}

func TestCircuitBreaker_OpensAfterThresholdAndRecovers(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(6000, 0)
	state := NewReliabilityState(now)

	for i := uint32(0); i < cfg.CircuitBreakerFailureThreshold-1; i++ {
		state.RecordProviderFailure(now, cfg)
	}
	if retry := state.CircuitBreakerRetryAfter(now); retry != 0 {
		t.Fatalf("circuit should still be closed below threshold, got retry %v", retry)
	}

	state.RecordProviderFailure(now, cfg)
	retry := state.CircuitBreakerRetryAfter(now)
	if retry <= 0 {
		t.Fatal("expected circuit to open once the failure threshold is reached")
	}

	afterCooldown := now.Add(cfg.CircuitBreakerCooldown + time.Second)
	if retry := state.CircuitBreakerRetryAfter(afterCooldown); retry != 0 {
		t.Errorf("expected circuit to auto-reset after cooldown, got retry %v", retry)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(7000, 0)
	state := NewReliabilityState(now)

	state.RecordProviderFailure(now, cfg)
	state.RecordProviderFailure(now, cfg)
	state.RecordProviderSuccess()
	state.RecordProviderFailure(now, cfg)

	if retry := state.CircuitBreakerRetryAfter(now); retry != 0 {
		t.Errorf("expected success to reset the streak, circuit should still be closed, got retry %v", retry)
	}
}

func TestBudgetGateway_TripsAndRolls(t *testing.T) {
	cfg := testReliabilityConfig()
	now := time.Unix(8000, 0)
	state := NewReliabilityState(now)

	if state.ShouldUseBudgetGateway(now, cfg) {
		t.Fatal("budget should not be exhausted before any spend is recorded")
	}

	state.RecordBudgetSpend(now, cfg, cfg.BudgetMaxEstimatedCostUSD)
	if !state.ShouldUseBudgetGateway(now, cfg) {
		t.Fatal("expected budget to be exhausted after spending the full allowance")
	}

	rolled := now.Add(cfg.BudgetWindow + time.Second)
	if state.ShouldUseBudgetGateway(rolled, cfg) {
		t.Fatal("expected budget window rollover to reset spend")
	}
}
