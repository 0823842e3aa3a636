package throttle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAllowed   = "allowed"
	outcomeThrottled = "throttled"
	outcomeBypassed  = "bypassed"
	outcomeCancelled = "cancelled"
	outcomeError     = "error"
)

// Metrics agrupa os coletores Prometheus do throttling e do limite de
// concorrência. Um *Metrics nil é válido e não registra nada.
type Metrics struct {
	decisions *prometheus.CounterVec
	duration  prometheus.Histogram

	inFlight            prometheus.Gauge
	concurrencyRejected prometheus.Counter
}

// NewMetrics cria e registra os coletores em reg. Com reg nil, os coletores
// existem mas não são registrados (útil em testes).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_decisions_total",
				Help: "Total number of throttling decisions by outcome",
			},
			[]string{"outcome"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "throttle_decision_duration_seconds",
				Help:    "Time spent deciding, including the wait for the engine lock",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
		),
		inFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "throttle_concurrency_in_flight",
				Help: "Requests currently holding a concurrency slot",
			},
		),
		concurrencyRejected: f.NewCounter(
			prometheus.CounterOpts{
				Name: "throttle_concurrency_rejected_total",
				Help: "Requests rejected because no concurrency slot was available",
			},
		),
	}
}

func (m *Metrics) observeDecision(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) slotAcquired() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) slotReleased() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) slotRejected() {
	if m != nil {
		m.concurrencyRejected.Inc()
	}
}
