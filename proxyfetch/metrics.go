package proxyfetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fetchMetrics holds the Prometheus instruments for attempt accounting.
// All methods are nil-safe so the hot path never branches on "metrics on?".
type fetchMetrics struct {
	attempts  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	wins      *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// newFetchMetrics registers the package counters on the given registerer.
func newFetchMetrics(reg prometheus.Registerer) *fetchMetrics {
	factory := promauto.With(reg)

	return &fetchMetrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfetch_attempts_total",
			Help: "Proxy-routed request attempts by proxy family.",
		}, []string{"family", "method"}),

		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfetch_attempt_failures_total",
			Help: "Failed attempts by proxy family and failure kind.",
		}, []string{"family", "kind"}),

		wins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfetch_fetch_success_total",
			Help: "Fetch calls that produced a result, by fetcher.",
		}, []string{"fetcher"}),

		exhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfetch_fetch_exhausted_total",
			Help: "Fetch calls that exhausted every proxy, by fetcher.",
		}, []string{"fetcher"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxyfetch_attempt_duration_seconds",
			Help:    "Wall-clock duration of single attempts.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"family"}),
	}
}

func (m *fetchMetrics) recordAttempt(family ProxyFamily, method string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(family.String(), method).Inc()
	m.duration.WithLabelValues(family.String()).Observe(elapsed.Seconds())
}

func (m *fetchMetrics) recordFailure(family ProxyFamily, kind FailureKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(family.String(), kind.String()).Inc()
}

func (m *fetchMetrics) recordWin(fetcher string) {
	if m == nil {
		return
	}
	m.wins.WithLabelValues(fetcher).Inc()
}

func (m *fetchMetrics) recordExhausted(fetcher string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(fetcher).Inc()
}
