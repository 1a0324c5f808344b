package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// namespace prefixes every metric name.
const namespace = "sos"

// Metrics holds the engine collectors.
type Metrics struct {
	registry    *prometheus.Registry
	triggered   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	fixes       *prometheus.CounterVec
	evidence    *prometheus.CounterVec
	upstream    *prometheus.CounterVec
	active      prometheus.Gauge
	stale       prometheus.Gauge
	published   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, including Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		triggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alerts created, by trigger kind.",
		}, []string{"trigger"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "State transitions after creation, by target state.",
		}, []string{"state"}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_fixes_total",
			Help:      "Location fixes applied to alerts, by confidence tier.",
		}, []string{"confidence"}),
		evidence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_appended_total",
			Help:      "Evidence items attached to alerts, by kind.",
		}, []string{"kind"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Failed collaborator calls, by collaborator.",
		}, []string{"collaborator"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts currently in flight.",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_alerts",
			Help:      "In-flight alerts older than the stale threshold.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events forwarded to external sinks, by sink and result.",
		}, []string{"sink", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.triggered,
		m.transitions,
		m.fixes,
		m.evidence,
		m.upstream,
		m.active,
		m.stale,
		m.published,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AlertTriggered counts a created alert.
func (m *Metrics) AlertTriggered(kind alert.TriggerKind) {
	m.triggered.WithLabelValues(string(kind)).Inc()
}

// AlertTransitioned counts a state transition.
func (m *Metrics) AlertTransitioned(state alert.State) {
	m.transitions.WithLabelValues(string(state)).Inc()
}

// LocationResolved counts an applied fix.
func (m *Metrics) LocationResolved(confidence alert.Confidence) {
	m.fixes.WithLabelValues(string(confidence)).Inc()
}

// EvidenceAppended counts an attached evidence item.
func (m *Metrics) EvidenceAppended(kind alert.EvidenceKind) {
	m.evidence.WithLabelValues(string(kind)).Inc()
}

// UpstreamFailed counts a failed collaborator call.
func (m *Metrics) UpstreamFailed(collaborator string) {
	m.upstream.WithLabelValues(collaborator).Inc()
}

// ActiveAlerts sets the in-flight gauge.
func (m *Metrics) ActiveAlerts(n int) {
	m.active.Set(float64(n))
}

// StaleAlerts sets the stale gauge.
func (m *Metrics) StaleAlerts(n int) {
	m.stale.Set(float64(n))
}

// EventPublished counts an event forwarded to an external sink.
func (m *Metrics) EventPublished(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.published.WithLabelValues(sink, result).Inc()
}
