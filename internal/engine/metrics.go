package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка (включая апстрим)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во вызовов инструментов
	TotalRequests *prometheus.CounterVec

	// Отказы по стадиям: killswitch, rate_limit, budget, agent_guard, policy, content, egress
	Denials *prometheus.CounterVec

	// Контент: найденные PII по типам и распределение risk score
	PIIMatches *prometheus.CounterVec
	RiskScore  prometheus.Histogram

	// Saturation: состояние Circuit Breaker по провайдерам (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера и сброшенные события (backpressure)
	AuditBufferFill prometheus.Gauge
	AuditDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Histogram of tool call latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool", "status"}),

		TotalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of processed tool calls.",
		}, []string{"tool"}),

		Denials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_denials_total",
			Help: "Total number of denied tool calls by pipeline stage.",
		}, []string{"stage"}),

		PIIMatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pii_matches_total",
			Help: "PII matches found in tool arguments and responses.",
		}, []string{"type"}),

		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_content_risk_score",
			Help:    "Distribution of content risk scores.",
			Buckets: []float64{0, 10, 20, 30, 50, 70, 90, 100},
		}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Current state of the egress circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"provider"}),

		AuditBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full.",
		}),
	}
}
