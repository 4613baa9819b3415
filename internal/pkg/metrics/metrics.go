package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RevenueIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burngate_revenue_ingestions_total",
		Help: "Revenue ingestions by source and result",
	}, []string{"source", "result"})

	BuybackResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burngate_buyback_results_total",
		Help: "Buyback attempts by trigger and outcome code",
	}, []string{"trigger", "outcome"})

	PressureBps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burngate_buyback_pressure_bps",
		Help: "Pressure used by the most recent buyback execution",
	})

	AccumulatedFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burngate_accumulated_funds",
		Help: "Funds awaiting buyback, in token units (approximate)",
	})

	Distributions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burngate_distributions_total",
		Help: "Treasury distributions by mode and outcome code",
	}, []string{"mode", "outcome"})

	Rebalances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burngate_rebalances_total",
		Help: "Liquidity rebalances by direction and outcome code",
	}, []string{"direction", "outcome"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burngate_events_dropped_total",
		Help: "Domain events dropped because the publish buffer was full",
	})

	OracleRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burngate_oracle_rejects_total",
		Help: "Price quotes rejected by the heartbeat guard",
	}, []string{"reason"})

	VenueBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "burngate_venue_breaker_state",
		Help: "Venue circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"venue"})

	ScheduledJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burngate_scheduled_jobs_total",
		Help: "Scheduled job runs by job and outcome code",
	}, []string{"job", "outcome"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "burngate_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})
)

// Outcome turns an error into a low-cardinality label.
func Outcome(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
