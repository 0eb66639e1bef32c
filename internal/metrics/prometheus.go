package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dialogue metrics
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finance_a2a_turns_total",
			Help: "Total number of conversation turns, by phase after the turn",
		},
		[]string{"phase"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finance_a2a_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	StatePersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finance_a2a_state_persistence_errors_total",
			Help: "Agent state load/save failures",
		},
		[]string{"op"}, // op: load|decode|save
	)

	// Delegation metrics
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finance_a2a_dispatches_total",
			Help: "Delegations to remote agents",
		},
		[]string{"agent", "status"}, // status: success|error|quota_exceeded
	)

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finance_a2a_dispatch_latency_seconds",
			Help:    "Remote agent dispatch latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"agent"},
	)

	// HTTP metrics
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finance_a2a_rate_limited_requests_total",
			Help: "Requests rejected by the per-user rate limiter",
		},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(TurnsTotal)
		prometheus.MustRegister(TurnDuration)
		prometheus.MustRegister(StatePersistenceErrors)
		prometheus.MustRegister(Dispatches)
		prometheus.MustRegister(DispatchLatency)
		prometheus.MustRegister(RateLimited)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
