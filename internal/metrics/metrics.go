package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

// Metrics collects Prometheus metrics for calls to the fine-tuning provider.
type Metrics struct {
	registry *prometheus.Registry

	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry, so several servers
// (and tests) can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tuner",
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Fine-tuning provider operations by operation and outcome (ok or error kind)",
			},
			[]string{"op", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tuner",
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Duration of fine-tuning provider operations in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"op"},
		),
	}
}

// ObserveCall implements finetune.Observer.
func (m *Metrics) ObserveCall(op string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(finetune.KindOf(err))
		if outcome == "" {
			outcome = "internal"
		}
	}
	m.callsTotal.WithLabelValues(op, outcome).Inc()
	m.callDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RegisterSessionGauge exports the number of live sessions reported by count.
func (m *Metrics) RegisterSessionGauge(count func() int) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "tuner",
			Name:      "sessions_active",
			Help:      "Number of browser sessions held in memory",
		},
		func() float64 { return float64(count()) },
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
