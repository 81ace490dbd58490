package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики горячего пути: тик → триггер → закрытие.

var ticksEvaluated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "risk_engine",
		Subsystem: "triggers",
		Name:      "ticks_evaluated_total",
		Help:      "Price ticks evaluated against the trigger cache",
	},
	[]string{"symbol"},
)

var tickEvalLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Subsystem: "triggers",
		Name:      "tick_eval_latency_ms",
		Help:      "Time to evaluate one tick against the symbol bucket in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
)

var triggersRecognized = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "risk_engine",
		Subsystem: "triggers",
		Name:      "recognized_total",
		Help:      "Triggers recognized and enqueued, by close reason",
	},
	[]string{"reason"},
)

var closesProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "risk_engine",
		Subsystem: "closer",
		Name:      "processed_total",
		Help:      "Durable close attempts by outcome",
	},
	[]string{"outcome"},
)

var closeLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Subsystem: "closer",
		Name:      "latency_seconds",
		Help:      "Durable close call latency",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	},
)

var closeQueueDrops = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "risk_engine",
		Subsystem: "closer",
		Name:      "queue_drops_total",
		Help:      "Triggers dropped because the close queue was full",
	},
)

var cacheSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "risk_engine",
		Subsystem: "cache",
		Name:      "positions",
		Help:      "Positions currently held in the trigger cache",
	},
)

var marginSweeps = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "risk_engine",
		Subsystem: "margin",
		Name:      "sweeps_total",
		Help:      "Margin sweep passes",
	},
)

var marginCalls = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "risk_engine",
		Subsystem: "margin",
		Name:      "calls_total",
		Help:      "Margin call triggers emitted",
	},
)
