package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rejoin_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rejoin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rejoin_decisions_total",
			Help: "Agent decisions recorded, by action.",
		},
		[]string{"action"},
	)

	DecisionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rejoin_decision_failures_total",
			Help: "Model responses that failed to parse into a decision.",
		},
	)

	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rejoin_dispatches_total",
			Help: "Outbound dispatch outcomes.",
		},
		[]string{"status"}, // sent, failed
	)

	RepliesWithheldTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rejoin_replies_withheld_total",
			Help: "Replies withheld from auto-dispatch, by reason.",
		},
		[]string{"reason"}, // automation_level, low_score, quiet_hours
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rejoin_llm_requests_total",
			Help: "Model API calls, by provider and outcome.",
		},
		[]string{"provider", "status"},
	)

	MemoriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rejoin_memories_total",
			Help: "Memory card operations from consolidation.",
		},
		[]string{"op"}, // create, update
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		DecisionFailuresTotal,
		DispatchesTotal,
		RepliesWithheldTotal,
		LLMRequestsTotal,
		MemoriesTotal,
	)
}
