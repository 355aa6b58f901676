package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Outcomes recorded per cache operation
const (
	outcomeHit      = "hit"
	outcomeMiss     = "miss"
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeInvalid  = "invalid"
	outcomeDegraded = "degraded"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pae_cache_operations_total",
			Help: "Cache operations by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pae_cache_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"cache"},
	)

	sweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pae_cache_swept_entries_total",
			Help: "Expired cache entries removed by the sweeper",
		},
		[]string{"backend"},
	)
)

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
