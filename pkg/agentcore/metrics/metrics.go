// Package metrics exposes Prometheus instrumentation for the runtime
// bridge: spawn/exit counts by provider and error category, auth
// rotation outcomes, and session map hit/miss/eviction counts.
// Grounded on the teacher's internal/observability/metrics.go
// (promauto-registered CounterVec/HistogramVec per concern, one
// struct of metrics built once at startup).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric this package exposes. Build one with New
// and thread it through the runtime base, auth resolver, and session
// map wherever they currently log a state change.
type Metrics struct {
	RuntimeSpawnsTotal *prometheus.CounterVec
	RuntimeExitsTotal  *prometheus.CounterVec
	RuntimeDuration    *prometheus.HistogramVec

	AuthRotationsTotal *prometheus.CounterVec

	SessionMapHitsTotal      prometheus.Counter
	SessionMapMissesTotal    prometheus.Counter
	SessionMapEvictionsTotal prometheus.Counter
}

// New builds and registers every metric against reg. Passing nil
// builds unregistered metrics — promauto.With(nil) is the documented
// way to get Prometheus collector types in tests without touching the
// global default registry (teacher code always registers against the
// implicit default registry; tests here want a cheap fresh instance
// per call instead, so New takes an explicit Registerer).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RuntimeSpawnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remoteclaw_runtime_spawns_total",
			Help: "Total number of agent CLI subprocesses spawned, by provider.",
		}, []string{"provider"}),

		RuntimeExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remoteclaw_runtime_exits_total",
			Help: "Total number of agent CLI subprocess exits, by provider and terminal error category.",
		}, []string{"provider", "category"}),

		RuntimeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remoteclaw_runtime_duration_seconds",
			Help:    "Wall-clock duration of a single runtime execution, by provider.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider"}),

		AuthRotationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remoteclaw_auth_rotations_total",
			Help: "Total number of auth profile resolutions, by provider and outcome.",
		}, []string{"provider", "outcome"}),

		SessionMapHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "remoteclaw_session_map_hits_total",
			Help: "Total number of session map lookups that found a non-expired entry.",
		}),

		SessionMapMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "remoteclaw_session_map_misses_total",
			Help: "Total number of session map lookups that found no entry or an expired one.",
		}),

		SessionMapEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "remoteclaw_session_map_evictions_total",
			Help: "Total number of session map entries purged for exceeding their ttl.",
		}),
	}
}

// category is "success" for a clean exit or the ErrorCategory string
// for a classified failure (retryable, context_overflow, fatal,
// timeout, aborted).
func (m *Metrics) ObserveExit(provider, category string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RuntimeExitsTotal.WithLabelValues(provider, category).Inc()
	m.RuntimeDuration.WithLabelValues(provider).Observe(durationSeconds)
}

func (m *Metrics) ObserveSpawn(provider string) {
	if m == nil {
		return
	}
	m.RuntimeSpawnsTotal.WithLabelValues(provider).Inc()
}

// outcome is "success" or "failure".
func (m *Metrics) ObserveAuthRotation(provider, outcome string) {
	if m == nil {
		return
	}
	m.AuthRotationsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveSessionMapHit(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.SessionMapHitsTotal.Inc()
	} else {
		m.SessionMapMissesTotal.Inc()
	}
}

func (m *Metrics) ObserveSessionMapEviction(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SessionMapEvictionsTotal.Add(float64(count))
}
