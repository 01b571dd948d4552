package llm

import (
	"sync"
	"time"
)

// ReliabilityConfig tunes the guarded state below. Mirrors the teacher's
// env-tag config style: small, flat, loaded once at startup.
type ReliabilityConfig struct {
	RateLimitWindow             time.Duration
	RateLimitGlobalMaxRequests  uint32
	RateLimitPerUserMaxRequests uint32
	CircuitBreakerFailureThreshold uint32
	CircuitBreakerCooldown      time.Duration
	CacheTTL                    time.Duration
	CacheMaxEntries             int
	BudgetWindow                time.Duration
	BudgetMaxEstimatedCostUSD   float64
}

type windowCounter struct {
	startedAt time.Time
	count     uint32
}

type circuitBreakerState struct {
	consecutiveFailures uint32
	openUntil           time.Time
}

type cachedResponse struct {
	response  *GatewayResponse
	expiresAt time.Time
}

type budgetWindow struct {
	startedAt time.Time
	spentUSD  float64
}

// RateLimitRejection reports which scope (global/user) rejected a request
// and how long the caller should wait before retrying.
type RateLimitRejection struct {
	Scope      string
	RetryAfter time.Duration
}

// ReliabilityState is the mutex-guarded state shared across every call into
// the gateway: rate-limit windows, circuit breaker, response cache, and
// cost budget. All counters live in process memory behind one mutex.
type ReliabilityState struct {
	mu sync.Mutex

	global      windowCounter
	perUser     map[string]windowCounter
	breaker     circuitBreakerState
	cache       map[string]cachedResponse
	cacheOrder  []string
	budget      budgetWindow
}

// NewReliabilityState builds an empty guarded state.
func NewReliabilityState(now time.Time) *ReliabilityState {
	return &ReliabilityState{
		global:  windowCounter{startedAt: now},
		perUser: make(map[string]windowCounter),
		cache:   make(map[string]cachedResponse),
		budget:  budgetWindow{startedAt: now},
	}
}

// CheckRateLimits increments the global and per-requester windows, and
// returns a rejection if either is exhausted.
func (s *ReliabilityState) CheckRateLimits(requesterID string, now time.Time, cfg ReliabilityConfig) *RateLimitRejection {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleUserWindows(now, cfg.RateLimitWindow)

	if retryAfter, rejected := incrementWindowCounter(&s.global, now, cfg.RateLimitWindow, cfg.RateLimitGlobalMaxRequests); rejected {
		return &RateLimitRejection{Scope: "global", RetryAfter: retryAfter}
	}

	counter := s.perUser[requesterID]
	if retryAfter, rejected := incrementWindowCounter(&counter, now, cfg.RateLimitWindow, cfg.RateLimitPerUserMaxRequests); rejected {
		s.perUser[requesterID] = counter
		return &RateLimitRejection{Scope: "user", RetryAfter: retryAfter}
	}
	s.perUser[requesterID] = counter
	return nil
}

func incrementWindowCounter(counter *windowCounter, now time.Time, window time.Duration, maxRequests uint32) (time.Duration, bool) {
	if now.Sub(counter.startedAt) >= window {
		counter.startedAt = now
		counter.count = 0
	}
	if counter.count >= maxRequests {
		elapsed := now.Sub(counter.startedAt)
		remaining := window - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return remaining, true
	}
	counter.count++
	return 0, false
}

func (s *ReliabilityState) pruneStaleUserWindows(now time.Time, window time.Duration) {
	staleAfter := window + window
	for id, counter := range s.perUser {
		if now.Sub(counter.startedAt) > staleAfter {
			delete(s.perUser, id)
		}
	}
}

// CachedResponse returns a cached response for key if still fresh.
func (s *ReliabilityState) CachedResponse(key string, now time.Time) *GatewayResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		return nil
	}
	if now.Before(entry.expiresAt) {
		return entry.response
	}
	delete(s.cache, key)
	s.dropCacheOrderKey(key)
	return nil
}

// StoreCachedResponse caches a response under key, evicting the oldest
// entry once CacheMaxEntries is exceeded.
func (s *ReliabilityState) StoreCachedResponse(key string, resp *GatewayResponse, now time.Time, cfg ReliabilityConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneExpiredCache(now)
	s.dropCacheOrderKey(key)
	s.cache[key] = cachedResponse{response: resp, expiresAt: now.Add(cfg.CacheTTL)}
	s.cacheOrder = append(s.cacheOrder, key)

	for len(s.cache) > cfg.CacheMaxEntries && len(s.cacheOrder) > 0 {
		oldest := s.cacheOrder[0]
		s.cacheOrder = s.cacheOrder[1:]
		delete(s.cache, oldest)
	}
}

func (s *ReliabilityState) pruneExpiredCache(now time.Time) {
	for key, entry := range s.cache {
		if !now.Before(entry.expiresAt) {
			delete(s.cache, key)
		}
	}
	filtered := s.cacheOrder[:0]
	for _, key := range s.cacheOrder {
		if _, ok := s.cache[key]; ok {
			filtered = append(filtered, key)
		}
	}
	s.cacheOrder = filtered
}

func (s *ReliabilityState) dropCacheOrderKey(key string) {
	filtered := s.cacheOrder[:0]
	for _, k := range s.cacheOrder {
		if k != key {
			filtered = append(filtered, k)
		}
	}
	s.cacheOrder = filtered
}

// CircuitBreakerRetryAfter returns how long the circuit stays open, or
// zero if it is closed (and auto-resets it once the cooldown elapses).
func (s *ReliabilityState) CircuitBreakerRetryAfter(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.breaker.openUntil.IsZero() {
		return 0
	}
	if !now.Before(s.breaker.openUntil) {
		s.breaker.openUntil = time.Time{}
		s.breaker.consecutiveFailures = 0
		return 0
	}
	return s.breaker.openUntil.Sub(now)
}

// RecordProviderSuccess resets the circuit breaker's failure count.
func (s *ReliabilityState) RecordProviderSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker.consecutiveFailures = 0
	s.breaker.openUntil = time.Time{}
}

// RecordProviderFailure increments the failure count and opens the
// circuit once the threshold is reached.
func (s *ReliabilityState) RecordProviderFailure(now time.Time, cfg ReliabilityConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker.consecutiveFailures++
	if s.breaker.consecutiveFailures >= cfg.CircuitBreakerFailureThreshold {
		s.breaker.openUntil = now.Add(cfg.CircuitBreakerCooldown)
	}
}

// ShouldUseBudgetGateway reports whether the rolling cost budget has been
// exhausted for the current window, rolling the window over if expired.
func (s *ReliabilityState) ShouldUseBudgetGateway(now time.Time, cfg ReliabilityConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollBudgetWindowIfNeeded(now, cfg)
	return s.budget.spentUSD >= cfg.BudgetMaxEstimatedCostUSD
}

// RecordBudgetSpend adds an estimated cost to the current budget window.
func (s *ReliabilityState) RecordBudgetSpend(now time.Time, cfg ReliabilityConfig, estimatedCostUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollBudgetWindowIfNeeded(now, cfg)
	if estimatedCostUSD > 0 {
		s.budget.spentUSD += estimatedCostUSD
	}
}

func (s *ReliabilityState) rollBudgetWindowIfNeeded(now time.Time, cfg ReliabilityConfig) {
	if now.Sub(s.budget.startedAt) >= cfg.BudgetWindow {
		s.budget.startedAt = now
		s.budget.spentUSD = 0
	}
}
