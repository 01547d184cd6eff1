package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmail_events_enqueued_total",
			Help: "Total number of task events appended to the queue by kind.",
		},
		[]string{"kind"},
	)

	EnqueueFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmail_enqueue_failures_total",
			Help: "Total number of queue appends that failed and were dropped.",
		},
	)

	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmail_events_dispatched_total",
			Help: "Total number of events handed to the dispatcher by kind.",
		},
		[]string{"kind"},
	)

	EventsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmail_events_skipped_total",
			Help: "Total number of queue entries skipped by reason.",
		},
		[]string{"reason"}, // e.g. bad_json, missing_task_id, unknown_kind
	)

	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmail_sends_total",
			Help: "Total number of per-recipient send attempts by outcome and recipient role.",
		},
		[]string{"outcome", "role"}, // outcome: delivered|failed, role: assigned|reporting
	)

	SendLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskmail_send_latency_seconds",
			Help:    "Latency of outbound mail transport sends.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmail_queue_reconnects_total",
			Help: "Total number of queue reconnect attempts by reason.",
		},
		[]string{"reason"}, // timeout, connection
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmail_queue_depth",
			Help: "Approximate number of entries waiting in the task event queue.",
		},
	)

	WorkerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskmail_worker_state",
			Help: "Current worker lifecycle state, 1 for the active state and 0 otherwise.",
		},
		[]string{"state"},
	)
)

var workerStates = []string{"stopped", "starting", "running", "reconnecting"}

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsEnqueuedTotal,
		EnqueueFailuresTotal,
		EventsDispatchedTotal,
		EventsSkippedTotal,
		SendsTotal,
		SendLatencySeconds,
		ReconnectsTotal,
		QueueDepth,
		WorkerState,
	)
}

// RecordEnqueued increments the enqueued counter for an event kind
func RecordEnqueued(kind string) {
	EventsEnqueuedTotal.WithLabelValues(kind).Inc()
}

// RecordEnqueueFailure increments the dropped-append counter
func RecordEnqueueFailure() {
	EnqueueFailuresTotal.Inc()
}

// RecordDispatched increments the dispatched counter for an event kind
func RecordDispatched(kind string) {
	EventsDispatchedTotal.WithLabelValues(kind).Inc()
}

// RecordSkipped increments the skipped-entry counter for a reason
func RecordSkipped(reason string) {
	EventsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordSend records one per-recipient send attempt
func RecordSend(outcome, role string, latency time.Duration) {
	SendsTotal.WithLabelValues(outcome, role).Inc()
	if latency > 0 {
		SendLatencySeconds.Observe(latency.Seconds())
	}
}

// RecordReconnect increments the reconnect counter for a reason
func RecordReconnect(reason string) {
	ReconnectsTotal.WithLabelValues(reason).Inc()
}

// UpdateQueueDepth sets the queue depth gauge
func UpdateQueueDepth(depth float64) {
	QueueDepth.Set(depth)
}

// UpdateWorkerState marks the given worker state active and clears the rest
func UpdateWorkerState(state string) {
	for _, s := range workerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		WorkerState.WithLabelValues(s).Set(v)
	}
}
