// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the
// orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring session
// workers and SSE streams. Metrics include:
//   - Active worker and stream gauges
//   - Enqueued messages and streamed tokens
//   - Cancellations by trigger
//   - Stream duration histograms
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "orchestrator"

// Subsystem for session metrics
const sessionSubsystem = "session"

// SessionMetrics holds all Prometheus metrics for session worker and
// streaming operations.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring worker
// lifecycle and stream delivery. Initialize once at startup via
// InitMetrics().
//
// # Fields
//
//   - ActiveWorkers: Gauge of live session workers
//   - ActiveStreams: Gauge of attached SSE viewers
//   - MessagesEnqueuedTotal: Counter of user turns queued to workers
//   - TokensStreamedTotal: Counter of tokens delivered to viewers
//   - CancellationsTotal: Counter of cancellations by trigger
//   - StreamDurationSeconds: Histogram of SSE connection duration
//   - WorkerFailuresTotal: Counter of worker exits caused by responder errors
//   - KeepAlivesTotal: Counter of keepalive pings sent
//
// # Thread Safety
//
// All operations are thread-safe.
type SessionMetrics struct {
	// ActiveWorkers tracks live session worker goroutines.
	ActiveWorkers prometheus.Gauge

	// ActiveStreams tracks currently attached SSE connections.
	ActiveStreams prometheus.Gauge

	// MessagesEnqueuedTotal counts user turns accepted by the message
	// endpoint and queued to a worker.
	MessagesEnqueuedTotal prometheus.Counter

	// TokensStreamedTotal counts assistant tokens written to SSE
	// streams.
	TokensStreamedTotal prometheus.Counter

	// CancellationsTotal counts session cancellations.
	// Labels: trigger (client, timeout, disconnect, shutdown)
	CancellationsTotal *prometheus.CounterVec

	// StreamDurationSeconds measures how long SSE connections stay
	// attached.
	// Labels: outcome (cancel, timeout, disconnect)
	StreamDurationSeconds *prometheus.HistogramVec

	// WorkerFailuresTotal counts workers that exited because the
	// responder failed mid-turn.
	WorkerFailuresTotal prometheus.Counter

	// KeepAlivesTotal counts keepalive pings sent.
	KeepAlivesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of SessionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *SessionMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Outputs
//
//   - *SessionMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *SessionMetrics {
	DefaultMetrics = &SessionMetrics{
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "active_workers",
			Help:      "Number of live session workers",
		}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "active_streams",
			Help:      "Number of attached SSE stream connections",
		}),

		MessagesEnqueuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "messages_enqueued_total",
			Help:      "Total user messages queued to session workers",
		}),

		TokensStreamedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "tokens_streamed_total",
			Help:      "Total assistant tokens written to SSE streams",
		}),

		CancellationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "cancellations_total",
				Help:      "Total session cancellations by trigger",
			},
			[]string{"trigger"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Duration of SSE stream connections in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),

		WorkerFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "worker_failures_total",
			Help:      "Total worker exits caused by responder failures",
		}),

		KeepAlivesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "keepalives_total",
			Help:      "Total keepalive pings sent",
		}),
	}

	return DefaultMetrics
}

// =============================================================================
// Stream Outcomes
// =============================================================================

// StreamOutcome labels how an SSE connection ended for the duration
// histogram.
type StreamOutcome string

const (
	// OutcomeCancel means the session was cancelled while attached.
	OutcomeCancel StreamOutcome = "cancel"

	// OutcomeTimeout means the idle timeout fired.
	OutcomeTimeout StreamOutcome = "timeout"

	// OutcomeDisconnect means the client went away silently.
	OutcomeDisconnect StreamOutcome = "disconnect"
)

// =============================================================================
// Helper Methods
// =============================================================================

// WorkerStarted increments the active workers gauge.
func (m *SessionMetrics) WorkerStarted() {
	m.ActiveWorkers.Inc()
}

// WorkerStopped decrements the active workers gauge.
func (m *SessionMetrics) WorkerStopped() {
	m.ActiveWorkers.Dec()
}

// StreamStarted increments the active streams gauge.
func (m *SessionMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *SessionMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordMessageEnqueued counts one accepted user turn.
func (m *SessionMetrics) RecordMessageEnqueued() {
	m.MessagesEnqueuedTotal.Inc()
}

// RecordTokenStreamed counts one token delivered to a viewer.
func (m *SessionMetrics) RecordTokenStreamed() {
	m.TokensStreamedTotal.Inc()
}

// RecordCancellation counts one cancellation.
//
// # Inputs
//
//   - trigger: Which path requested the cancellation.
func (m *SessionMetrics) RecordCancellation(trigger string) {
	m.CancellationsTotal.WithLabelValues(trigger).Inc()
}

// RecordStreamDuration records how long a stream stayed attached.
//
// # Inputs
//
//   - outcome: How the connection ended.
//   - seconds: Attached duration in seconds.
func (m *SessionMetrics) RecordStreamDuration(outcome StreamOutcome, seconds float64) {
	m.StreamDurationSeconds.WithLabelValues(string(outcome)).Observe(seconds)
}

// RecordWorkerFailure counts one responder-caused worker exit.
func (m *SessionMetrics) RecordWorkerFailure() {
	m.WorkerFailuresTotal.Inc()
}

// RecordKeepAlive counts one keepalive ping.
func (m *SessionMetrics) RecordKeepAlive() {
	m.KeepAlivesTotal.Inc()
}
