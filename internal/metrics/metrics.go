// Package metrics exposes Prometheus collectors for wallet connections.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletkit"

// Metrics groups the collectors
type Metrics struct {
	registry        *prometheus.Registry
	connectAttempts *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	activeAccounts  *prometheus.GaugeVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts by provider and result.",
		}, []string{"provider", "result"}),
		connectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time from connect call to connected account, including user approval.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"provider"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_operations_total",
			Help:      "Sign and send operations by provider, operation and result.",
		}, []string{"provider", "op", "result"}),
		activeAccounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_accounts",
			Help:      "1 while an account of the provider is the active one.",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.connectAttempts, m.connectDuration, m.operations, m.activeAccounts)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConnect records one connect attempt
func (m *Metrics) ObserveConnect(provider, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(provider, result).Inc()
	if result == "ok" {
		m.connectDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

// ObserveOperation records one sign or send call
func (m *Metrics) ObserveOperation(provider, op, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(provider, op, result).Inc()
}

// SetActive marks provider as active or not
func (m *Metrics) SetActive(provider string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.activeAccounts.WithLabelValues(provider).Set(v)
}
