// Package observability provides Prometheus metrics for the simulator and API.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Simulation metrics
	SimulationsTotal   *prometheus.CounterVec
	SimulationDuration *prometheus.HistogramVec
	TradesSimulated    prometheus.Counter
	ValidationFailures *prometheus.CounterVec

	// API metrics
	ResultsRetained  prometheus.Gauge
	WebSocketClients prometheus.Gauge
}

// NewMetrics registers all metrics on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "journal_backend"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SimulationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "montecarlo",
			Name:      "simulations_total",
			Help:      "Total number of simulation batches by risk model and status",
		}, []string{"model", "status"}),
		SimulationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "montecarlo",
			Name:      "simulation_duration_seconds",
			Help:      "Simulation batch duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"model"}),
		TradesSimulated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "montecarlo",
			Name:      "simulated_trades_total",
			Help:      "Total number of simulated trades",
		}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "montecarlo",
			Name:      "validation_failures_total",
			Help:      "Rejected simulation parameters by field",
		}, []string{"field"}),

		ResultsRetained: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "results_retained",
			Help:      "Number of simulation results held in memory",
		}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

// ObserveSimulation records one finished (or aborted) batch.
func (m *Metrics) ObserveSimulation(model, status string, elapsed time.Duration, trades int64) {
	if m == nil {
		return
	}
	m.SimulationsTotal.WithLabelValues(model, status).Inc()
	m.SimulationDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	if trades > 0 {
		m.TradesSimulated.Add(float64(trades))
	}
}

// ObserveValidationFailure records one rejected field.
func (m *Metrics) ObserveValidationFailure(field string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(field).Inc()
}

// SetResultsRetained reports the registry size.
func (m *Metrics) SetResultsRetained(n int) {
	if m == nil {
		return
	}
	m.ResultsRetained.Set(float64(n))
}

// SetWebSocketClients reports the hub size.
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(n))
}

// Handler returns an HTTP handler exposing the metrics in gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
