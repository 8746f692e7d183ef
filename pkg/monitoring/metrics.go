package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Shard fetch outcomes, used as the "outcome" label.
const (
	outcomeOK      = "ok"
	outcomeMissing = "missing"
	outcomeFailed  = "failed"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	shardFetches    *prometheus.CounterVec
	fallbacks       prometheus.Counter
	mappingFailures prometheus.Counter
	queryDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		shardFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moldwatch_shard_fetches_total",
			Help: "Shard table fetches by outcome (ok, missing, failed).",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moldwatch_fallback_responses_total",
			Help: "Responses served from the synthetic series because the store was unavailable.",
		}),
		mappingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moldwatch_mapping_lookup_failures_total",
			Help: "Component mapping lookups that failed and were ignored.",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moldwatch_query_duration_seconds",
			Help:    "End-to-end monitoring query latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"agg"}),
	}

	reg.MustRegister(m.shardFetches, m.fallbacks, m.mappingFailures, m.queryDuration)
	return m
}

func (m *Metrics) shardFetch(outcome string) {
	if m == nil {
		return
	}
	m.shardFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) mappingFailure() {
	if m == nil {
		return
	}
	m.mappingFailures.Inc()
}

func (m *Metrics) observeQuery(g Granularity, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(string(g)).Observe(d.Seconds())
}
