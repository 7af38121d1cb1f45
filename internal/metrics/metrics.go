// Package metrics содержит Prometheus-коллекторы сервиса.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics — коллекторы проходов, шлюза, публикации и решений по уведомлениям.
// Все методы безопасны для nil-получателя.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	activeRuns  prometheus.Gauge

	gatewayAttempts *prometheus.CounterVec
	gatewayResults  *prometheus.CounterVec

	published *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

// New регистрирует коллекторы в DefaultRegisterer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer регистрирует коллекторы в переданном реестре.
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "stockwatch_runs_total",
			Help: "Total number of watch runs by result",
		}, []string{"result"}),
		runDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "stockwatch_run_duration_seconds",
			Help:    "Duration of watch runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		activeRuns: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "stockwatch_active_runs",
			Help: "Number of watch runs in progress",
		}),
		gatewayAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "stockwatch_gateway_attempts_total",
			Help: "Total number of outbound HTTP attempts by host and result",
		}, []string{"host", "result"}),
		gatewayResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "stockwatch_gateway_results_total",
			Help: "Total number of outbound HTTP requests by final outcome",
		}, []string{"outcome"}),
		published: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "stockwatch_published_events_total",
			Help: "Total number of published events by topic and result",
		}, []string{"topic", "result"}),
		decisions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "stockwatch_low_stock_decisions_total",
			Help: "Total number of low stock decisions by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveAttempt учитывает одну попытку HTTP-запроса.
func (m *Metrics) ObserveAttempt(host string, err error) {
	if m == nil {
		return
	}
	m.gatewayAttempts.WithLabelValues(host, resultOf(err)).Inc()
}

// ObserveResult учитывает итоговый исход HTTP-запроса.
func (m *Metrics) ObserveResult(outcome string) {
	if m == nil {
		return
	}
	m.gatewayResults.WithLabelValues(outcome).Inc()
}

// RunStarted отмечает начало прохода.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished учитывает завершённый проход и его длительность.
func (m *Metrics) RunFinished(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runs.WithLabelValues(resultOf(err)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// RecordPublish учитывает публикацию события в топик.
func (m *Metrics) RecordPublish(topic string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic, resultOf(err)).Inc()
}

// RecordDecision учитывает решение движка порогов: fired или причина пропуска.
func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
