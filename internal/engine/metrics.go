package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла оценка перехода (включая чтения куба)
	EvaluationDuration *prometheus.HistogramVec

	// Traffic: общее число оценок по переходам и исходам
	EvaluationsTotal *prometheus.CounterVec

	// Errors: какие шлюзы блокируют чаще всего
	GateFailures *prometheus.CounterVec

	// Качество данных: результаты правил по severity
	RuleResults *prometheus.CounterVec

	// Интеркомпани: суммарное число найденных расхождений
	ICMismatches prometheus.Counter

	// Saturation: заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EvaluationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "closegate_evaluation_duration_seconds",
			Help:    "Histogram of submission gate evaluation latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"transition", "outcome"}),

		EvaluationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "closegate_evaluations_total",
			Help: "Total number of gate evaluations.",
		}, []string{"transition", "outcome"}), // исходы: allowed, blocked, canceled

		GateFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "closegate_gate_failures_total",
			Help: "Total number of gate failures by gate name.",
		}, []string{"gate"}),

		RuleResults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "closegate_rule_results_total",
			Help: "Validation rule outcomes by severity.",
		}, []string{"rule", "severity"}),

		ICMismatches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "closegate_ic_mismatches_total",
			Help: "Total intercompany mismatches detected.",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "closegate_audit_buffer_utilization",
			Help: "Current number of entries in the audit buffer.",
		}),
	}
}
