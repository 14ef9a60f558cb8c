// Package metrics holds the Prometheus collectors for doorgate.
//
// Collectors are registered on a per-instance registry so tests and
// multiple instances never collide on the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doorgate"

// Line results recorded by the ingest processor.
const (
	LineInserted   = "inserted"
	LineDuplicate  = "duplicate"
	LineParseError = "parse_error"
	LineStoreError = "store_error"
)

// Publish results recorded by the watch bridge.
const (
	PublishOK          = "ok"
	PublishFailed      = "publish_error"
	PublishMissingFile = "missing_file"
	PublishEmpty       = "empty"
	PublishDropped     = "dropped"
)

// Metrics holds every collector the gateway exports.
type Metrics struct {
	registry *prometheus.Registry

	LinesTotal    *prometheus.CounterVec
	BatchesTotal  prometheus.Counter
	PublishTotal  *prometheus.CounterVec
	PublishBytes  *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	MQTTConnected prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "lines_total",
			Help:      "Log lines processed, by result.",
		}, []string{"result"}), // inserted, duplicate, parse_error, store_error
		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Log payloads received on the log topic.",
		}),
		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "publish_total",
			Help:      "File publish attempts, by kind and result.",
		}, []string{"kind", "result"}),
		PublishBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "publish_bytes_total",
			Help:      "Bytes published from watched files, by kind.",
		}, []string{"kind"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "queue_depth",
			Help:      "Publish tasks waiting for a worker.",
		}),
		MQTTConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 while the broker connection is up.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLine counts one processed log line.
func (m *Metrics) ObserveLine(result string) {
	m.LinesTotal.WithLabelValues(result).Inc()
}

// ObserveBatch counts one received log payload.
func (m *Metrics) ObserveBatch() {
	m.BatchesTotal.Inc()
}

// ObservePublish counts one publish attempt. Bytes are added only for
// successful publishes.
func (m *Metrics) ObservePublish(kind, result string, bytes int) {
	m.PublishTotal.WithLabelValues(kind, result).Inc()
	if result == PublishOK {
		m.PublishBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// SetQueueDepth records the current publish backlog.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(up bool) {
	if up {
		m.MQTTConnected.Set(1)
		return
	}
	m.MQTTConnected.Set(0)
}
