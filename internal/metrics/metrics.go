// Package metrics exposes pipeline counters as Prometheus collectors.
//
// All methods are safe on a nil *Metrics, which is what pipeline components
// hold when metrics are disabled.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/muxlog/internal/model"
)

const namespace = "muxlog"

// Metrics contains the pipeline collectors.
type Metrics struct {
	RecordsWritten  prometheus.Counter
	Backpressure    prometheus.Counter
	InputQueueDepth prometheus.Gauge
	EnvelopesRouted *prometheus.CounterVec
	EventsEmitted   *prometheus.CounterVec
	Diagnostics     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "records_total",
			Help:      "Raw records accepted by Write",
		}),
		Backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "backpressure_total",
			Help:      "Writes that returned the not-accepting signal",
		}),
		InputQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "queue_depth",
			Help:      "Raw records waiting to be framed",
		}),
		EnvelopesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "envelopes_total",
			Help:      "Envelopes handled by the router, by discriminator",
		}, []string{"discriminator"}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Normalized events merged into the output, by discriminator",
		}, []string{"discriminator"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "diagnostics_total",
			Help:      "Records degraded or dropped, by diagnostic kind",
		}, []string{"kind"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.RecordsWritten, m.Backpressure, m.InputQueueDepth,
			m.EnvelopesRouted, m.EventsEmitted, m.Diagnostics,
		} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("metrics: register: %w", err)
			}
		}
	}
	return m, nil
}

func (m *Metrics) RecordWritten(accepted bool) {
	if m == nil {
		return
	}
	m.RecordsWritten.Inc()
	if !accepted {
		m.Backpressure.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.InputQueueDepth.Set(float64(n))
}

func (m *Metrics) EnvelopeRouted(d model.Discriminator) {
	if m == nil {
		return
	}
	m.EnvelopesRouted.WithLabelValues(routeLabel(d)).Inc()
}

func (m *Metrics) EventEmitted(d model.Discriminator) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) Diagnostic(kind model.DiagnosticKind) {
	if m == nil {
		return
	}
	m.Diagnostics.WithLabelValues(string(kind)).Inc()
}

// routeLabel keeps the discriminator label set closed: any byte outside the
// route alphabet counts as "unknown".
func routeLabel(d model.Discriminator) string {
	if !d.Known() {
		return "unknown"
	}
	return d.String()
}
