// Package metrics exposes Prometheus counters for favorites activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "starz"

type Metrics struct {
	registry *prometheus.Registry

	added         prometheus.Counter
	removed       *prometheus.CounterVec
	shifted       prometheus.Counter
	hostEvents    *prometheus.CounterVec
	persistWrites prometheus.Counter
	persistErrors prometheus.Counter
	viewRefreshes prometheus.Counter
	sessions      prometheus.Gauge
}

// New registers all collectors on a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		added: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_added_total",
			Help:      "Favorite records created.",
		}),
		removed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_removed_total",
			Help:      "Favorite records removed, by reason.",
		}, []string{"reason"}),
		shifted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_refs_shifted_total",
			Help:      "Positional references rewritten after the host log was renumbered.",
		}),
		hostEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_events_total",
			Help:      "Host log notifications dispatched, by kind.",
		}, []string{"kind"}),
		persistWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_writes_total",
			Help:      "Metadata documents written to storage.",
		}),
		persistErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed metadata writes.",
		}),
		viewRefreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_refreshes_total",
			Help:      "Refresh notifications delivered to open views.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_loaded",
			Help:      "Conversations currently held in memory.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Added() {
	if m != nil {
		m.added.Inc()
	}
}

// Removed counts n removals. reason is one of "user", "deleted" or "pruned".
func (m *Metrics) Removed(reason string, n int) {
	if m != nil && n > 0 {
		m.removed.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) Shifted(n int) {
	if m != nil && n > 0 {
		m.shifted.Add(float64(n))
	}
}

func (m *Metrics) HostEvent(kind string) {
	if m != nil {
		m.hostEvents.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PersistWritten() {
	if m != nil {
		m.persistWrites.Inc()
	}
}

func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistErrors.Inc()
	}
}

func (m *Metrics) ViewRefreshed() {
	if m != nil {
		m.viewRefreshes.Inc()
	}
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}
