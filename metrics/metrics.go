// Package metrics exposes Prometheus instrumentation for the OCR client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exchange outcomes.
const (
	OutcomeOK      = "ok"      // code 100
	OutcomeNoText  = "no_text" // code 101
	OutcomeFailure = "failure" // any other worker code
	OutcomeInvalid = "invalid" // unparseable response line
	OutcomeWrite   = "write"   // request could not be sent
	OutcomeExited  = "exited"  // worker exited first
)

// Worker exit reasons.
const (
	ExitNormal    = "exit"
	ExitSignal    = "signal"
	ExitHandshake = "handshake"
)

// Metrics holds the client's collectors.
type Metrics struct {
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	QueueWait        prometheus.Histogram
	QueueDepth       prometheus.Gauge
	InFlight         prometheus.Gauge

	WorkerStartsTotal prometheus.Counter
	WorkerExitsTotal  *prometheus.CounterVec
	WorkerReady       prometheus.Gauge
	UnsolicitedLines  prometheus.Counter
}

// New registers the collectors with registerer. A nil registerer uses a
// fresh registry, which keeps tests and multiple clients independent.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)

	return &Metrics{
		ExchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrpipe_exchanges_total",
				Help: "Completed request/response exchanges by outcome",
			},
			[]string{"outcome"},
		),
		ExchangeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocrpipe_exchange_duration_seconds",
				Help:    "Time from submission to resolution",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		QueueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocrpipe_queue_wait_seconds",
				Help:    "Time a request waited before it was written to the worker",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrpipe_queue_depth",
				Help: "Requests waiting behind the in-flight exchange",
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrpipe_in_flight",
				Help: "1 while an exchange awaits its response",
			},
		),
		WorkerStartsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ocrpipe_worker_starts_total",
				Help: "Worker processes spawned",
			},
		),
		WorkerExitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrpipe_worker_exits_total",
				Help: "Worker process exits by reason",
			},
			[]string{"reason"},
		),
		WorkerReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrpipe_worker_ready",
				Help: "1 while the worker is ready",
			},
		),
		UnsolicitedLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ocrpipe_unsolicited_lines_total",
				Help: "Worker output lines that arrived with no request in flight",
			},
		),
	}
}

// RecordSubmit records a request entering the queue.
func (m *Metrics) RecordSubmit(queued int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(queued))
}

// RecordTransmit records a request being written to the worker.
func (m *Metrics) RecordTransmit(queued int, wait time.Duration) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(queued))
	m.InFlight.Set(1)
	m.QueueWait.Observe(wait.Seconds())
}

// RecordComplete records a resolved exchange.
func (m *Metrics) RecordComplete(outcome string, queued int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(queued))
	m.InFlight.Set(0)
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
	m.ExchangeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordUnsolicited counts a response line with nothing in flight.
func (m *Metrics) RecordUnsolicited() {
	if m == nil {
		return
	}
	m.UnsolicitedLines.Inc()
}

// RecordWorkerStart counts a spawned worker.
func (m *Metrics) RecordWorkerStart() {
	if m == nil {
		return
	}
	m.WorkerStartsTotal.Inc()
}

// RecordWorkerReady marks the worker ready.
func (m *Metrics) RecordWorkerReady() {
	if m == nil {
		return
	}
	m.WorkerReady.Set(1)
}

// RecordWorkerExit counts an exit and clears the ready and in-flight gauges.
func (m *Metrics) RecordWorkerExit(reason string) {
	if m == nil {
		return
	}
	m.WorkerReady.Set(0)
	m.InFlight.Set(0)
	m.QueueDepth.Set(0)
	m.WorkerExitsTotal.WithLabelValues(reason).Inc()
}

// Handler serves the metrics gathered by gatherer in the text exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
