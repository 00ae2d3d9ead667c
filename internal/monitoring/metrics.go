package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTicks counts poller ticks, labelled by kind (tick or drain)
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfwatch_poll_ticks_total",
		Help: "Number of poll ticks started.",
	}, []string{"kind"})

	// PollFailures counts ticks that stopped polling on a fetch error
	PollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfwatch_poll_failures_total",
		Help: "Number of poll ticks that failed and stopped polling.",
	})

	// IngestedTicks counts sample ticks accepted by ingestors
	IngestedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfwatch_ingested_ticks_total",
		Help: "Number of sample ticks accepted.",
	})

	// UnitPromotions counts byte-rate series promoted from KB to MB
	UnitPromotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfwatch_unit_promotions_total",
		Help: "Number of byte-rate series promoted from KB to MB.",
	}, []string{"metric"})

	// ActiveSessions is the number of open aggregation sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perfwatch_active_sessions",
		Help: "Number of open aggregation sessions.",
	})

	// CacheHits and CacheMisses track the execution detail cache
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfwatch_cache_hits_total",
		Help: "The total number of execution detail cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfwatch_cache_misses_total",
		Help: "The total number of execution detail cache misses.",
	})
)
