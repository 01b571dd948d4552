package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks host API request latency by route and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "alfred",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"route", "method", "status"},
)

// RPCSignatureFailuresTotal counts rejected enclave RPC requests by reason.
var RPCSignatureFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "rpc",
		Name:      "signature_failures_total",
		Help:      "Total number of enclave RPC requests rejected during signature verification.",
	},
	[]string{"reason"},
)

// RPCReplayDetectedTotal counts nonces rejected as replays.
var RPCReplayDetectedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "rpc",
		Name:      "replay_detected_total",
		Help:      "Total number of enclave RPC requests rejected as replays.",
	},
)

// AttestationVerificationsTotal counts attestation verification outcomes.
var AttestationVerificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "attestation",
		Name:      "verifications_total",
		Help:      "Total number of attestation response verifications by outcome.",
	},
	[]string{"outcome"},
)

// OrchestratorStageDuration tracks assistant orchestrator stage latency.
var OrchestratorStageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "alfred",
		Subsystem: "orchestrator",
		Name:      "stage_duration_seconds",
		Help:      "Assistant orchestrator stage duration in seconds.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"stage", "lane"},
)

// OrchestratorFallbackTotal counts planner fallbacks to the keyword detector.
var OrchestratorFallbackTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "orchestrator",
		Name:      "planner_fallback_total",
		Help:      "Total number of times the semantic planner fell back to keyword detection.",
	},
	[]string{"reason"},
)

// JobsClaimedTotal counts leased job claims by job kind.
var JobsClaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "jobs",
		Name:      "claimed_total",
		Help:      "Total number of jobs claimed by the worker.",
	},
	[]string{"kind"},
)

// JobsRetriedTotal counts job retries after a transient failure.
var JobsRetriedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "jobs",
		Name:      "retried_total",
		Help:      "Total number of job retries scheduled after a transient failure.",
	},
	[]string{"kind"},
)

// JobsDeadLetteredTotal counts jobs moved to the dead letter state.
var JobsDeadLetteredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "jobs",
		Name:      "dead_lettered_total",
		Help:      "Total number of jobs moved to the dead letter state.",
	},
	[]string{"kind", "reason"},
)

// AutomationRunsMaterializedTotal counts automation runs inserted by the scheduler.
var AutomationRunsMaterializedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "automation",
		Name:      "runs_materialized_total",
		Help:      "Total number of automation runs materialized from due rules.",
	},
)

// PushDeliveriesTotal counts APNs push delivery attempts by outcome.
var PushDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alfred",
		Subsystem: "push",
		Name:      "deliveries_total",
		Help:      "Total number of APNs push delivery attempts by outcome.",
	},
	[]string{"outcome"},
)

// LLMProviderCircuitState reports whether the LLM reliability breaker is open.
var LLMProviderCircuitState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "alfred",
		Subsystem: "llm",
		Name:      "circuit_open",
		Help:      "1 if the LLM provider circuit breaker is currently open, 0 otherwise.",
	},
)

// All returns all Alfred-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		RPCSignatureFailuresTotal,
		RPCReplayDetectedTotal,
		AttestationVerificationsTotal,
		OrchestratorStageDuration,
		OrchestratorFallbackTotal,
		JobsClaimedTotal,
		JobsRetriedTotal,
		JobsDeadLetteredTotal,
		AutomationRunsMaterializedTotal,
		PushDeliveriesTotal,
		LLMProviderCircuitState,
	}
}
