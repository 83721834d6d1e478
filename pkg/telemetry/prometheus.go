package telemetry

import "github.com/prometheus/client_golang/prometheus"

// PrometheusListener publishes every Event as an increment on a single
// counter vector, labeled by the literal dotted metric name from
// spec.md §4.10, grounded on the reference corpus's CounterVec
// construction/registration style.
type PrometheusListener struct {
	events *prometheus.CounterVec
}

// NewPrometheusListener builds a listener and its counter under namespace.
// Register it with a *prometheus.Registry via Register.
func NewPrometheusListener(namespace string) *PrometheusListener {
	return &PrometheusListener{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polly_events_total",
				Help:      "Total resilience pipeline strategy events, labeled by the dotted polly.<strategy>.<event>.<operationKey> metric name.",
			},
			[]string{"metric"},
		),
	}
}

// Register registers the listener's counter vector with registry.
func (p *PrometheusListener) Register(registry *prometheus.Registry) error {
	return registry.Register(p.events)
}

// OnEvent implements Listener.
func (p *PrometheusListener) OnEvent(e Event) {
	p.events.WithLabelValues(e.MetricName()).Inc()
}
