package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/listener"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/queue"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/recovery"
	"github.com/ethereumidentitykit/ens-market-bot-sub001/internal/worker"
)

// Metrics groups all Prometheus instruments used by the dispatcher.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	SignalsReceived  *prometheus.CounterVec
	SignalsMalformed prometheus.Counter
	Dispatches       *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	QueueDropped     *prometheus.CounterVec
	ListenerUp       prometheus.Gauge
	Reconnects       prometheus.Counter
	RecoverySeeded   *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_received_total",
			Help: "Total number of store notifications received, by category.",
		}, []string{"category"}),

		SignalsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_malformed_total",
			Help: "Total number of notifications discarded at the parse boundary.",
		}),

		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatches_total",
			Help: "Total number of processed queue items, by category and outcome.",
		}, []string{"category", "outcome"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of ids waiting in each per-category queue.",
		}, []string{"category"}),

		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_rejected_total",
			Help: "Total number of ids rejected because a queue was at capacity.",
		}, []string{"category"}),

		ListenerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "listener_up",
			Help: "1 while the notification connection is in the listening state.",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listener_reconnects_total",
			Help: "Total number of scheduled reconnection attempts.",
		}),

		RecoverySeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_seeded_total",
			Help: "Records seeded into the queues by the startup recovery scan.",
		}, []string{"category"}),
	}

	reg.MustRegister(
		m.SignalsReceived,
		m.SignalsMalformed,
		m.Dispatches,
		m.QueueDepth,
		m.QueueDropped,
		m.ListenerUp,
		m.Reconnects,
		m.RecoverySeeded,
	)

	return m
}

// ListenerHooks returns the callbacks expected by listener.Hooks.
// Centralises the prometheus observation calls so the listener stays
// metrics-agnostic.
func (m *Metrics) ListenerHooks() listener.Hooks {
	return listener.Hooks{
		OnSignal: func(c domain.Category) {
			m.SignalsReceived.WithLabelValues(string(c)).Inc()
		},
		OnMalformed: func() {
			m.SignalsMalformed.Inc()
		},
		OnState: func(s listener.State) {
			if s == listener.StateListening {
				m.ListenerUp.Set(1)
			} else {
				m.ListenerUp.Set(0)
			}
		},
		OnReconnect: func(int) {
			m.Reconnects.Inc()
		},
	}
}

// QueueHooks returns the callbacks expected by queue.Hooks.
func (m *Metrics) QueueHooks() queue.Hooks {
	return queue.Hooks{
		OnDepth: func(c domain.Category, depth int) {
			m.QueueDepth.WithLabelValues(string(c)).Set(float64(depth))
		},
		OnDropped: func(c domain.Category) {
			m.QueueDropped.WithLabelValues(string(c)).Inc()
		},
	}
}

// WorkerHooks returns the callbacks expected by worker.Hooks.
func (m *Metrics) WorkerHooks() worker.Hooks {
	return worker.Hooks{
		OnOutcome: func(c domain.Category, outcome string) {
			m.Dispatches.WithLabelValues(string(c), outcome).Inc()
		},
	}
}

// RecoveryHooks returns the callbacks expected by recovery.Hooks.
func (m *Metrics) RecoveryHooks() recovery.Hooks {
	return recovery.Hooks{
		OnSeeded: func(c domain.Category, count int) {
			m.RecoverySeeded.WithLabelValues(string(c)).Add(float64(count))
		},
	}
}
