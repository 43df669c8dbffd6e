package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one fontreg run
type Metrics struct {
	registry      *prometheus.Registry
	Transitions   *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry, so a run only
// reports what it did itself.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fontreg_transitions_total",
			Help: "Font install and uninstall attempts by outcome",
		}, []string{"operation", "scope", "outcome"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fontreg_retry_attempts_total",
			Help: "Filesystem operations retried because a file was locked or busy",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.Transitions, m.RetryAttempts)
	return m
}

// ObserveTransition counts one finished install or uninstall
func (m *Metrics) ObserveTransition(operation, scope, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(operation, scope, outcome).Inc()
}

// ObserveRetry counts one failed attempt that will be retried
func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// Gatherer exposes the registry, mainly for tests
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format, suitable for
// the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
