// Package metrics provides Prometheus instrumentation for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts executed commands by kind and outcome.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_commands_total",
			Help: "Commands executed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// CommandDuration tracks transactional step latency including retries.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_command_duration_seconds",
			Help:    "Transactional step duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"kind"},
	)

	// CommandRetries counts transient-failure retries.
	CommandRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_command_retries_total",
			Help: "Transactional step retries after transient store failures",
		},
		[]string{"kind"},
	)

	// DeferredFailures counts failed deferred steps.
	DeferredFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_deferred_failures_total",
			Help: "Deferred steps that returned an error",
		},
		[]string{"step"},
	)

	// QueueDepth is the number of commands waiting for the worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_command_queue_depth",
			Help: "Commands queued for the transactional worker",
		},
	)

	// ReplayedTotal counts commands replayed from the journal at start.
	ReplayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_commands_replayed_total",
			Help: "Commands replayed from the journal",
		},
	)

	// ChangesPublished counts change hints by topic.
	ChangesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_changes_published_total",
			Help: "Change hints published on the bus",
		},
		[]string{"topic"},
	)

	// WatchStreamsActive tracks open change-watch RPC streams.
	WatchStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_watch_streams_active",
			Help: "Number of open WatchChanges streams",
		},
	)

	// BridgeForwarded counts hints forwarded to NATS by topic.
	BridgeForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_bridge_forwarded_total",
			Help: "Change hints forwarded to NATS",
		},
		[]string{"topic"},
	)
)
