// Package metrics holds the Prometheus collectors for ingest, retrieval and sessions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kotae"

// Outcome labels for answers.
const (
	OutcomeAnswered  = "answered"
	OutcomeFallback  = "fallback"
	OutcomeNoContext = "no_context"
)

// Metrics groups the collectors registered by New.
type Metrics struct {
	ChunksIndexed     prometheus.Counter
	ChunksSkipped     prometheus.Counter
	IngestsTotal      *prometheus.CounterVec
	EmbeddingFailures prometheus.Counter
	SynthesisFailures prometheus.Counter
	VectorStoreErrors *prometheus.CounterVec
	AnswersTotal      *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec
	ActiveSessions    prometheus.Gauge
	InterruptedTurns  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks upserted into the vector index",
		}),
		ChunksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_skipped_total",
			Help:      "Total number of chunks skipped because no usable embedding was produced",
		}),
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of ingest requests by result",
		}, []string{"result"}),
		EmbeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "failures_total",
			Help:      "Total number of embedding calls that returned no vector",
		}),
		SynthesisFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "failures_total",
			Help:      "Total number of synthesis calls that returned no answer",
		}),
		VectorStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "errors_total",
			Help:      "Total number of vector store failures by operation",
		}, []string{"op"}),
		AnswersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "answers_total",
			Help:      "Total number of answers by outcome",
		}, []string{"outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of remote provider calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of open conversation sessions",
		}),
		InterruptedTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "interrupted_turns_total",
			Help:      "Total number of turns whose answer was discarded after an interrupt",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ChunksIndexed, m.ChunksSkipped, m.IngestsTotal,
			m.EmbeddingFailures, m.SynthesisFailures, m.VectorStoreErrors,
			m.AnswersTotal, m.ProviderDuration, m.ActiveSessions, m.InterruptedTurns,
		)
	}
	return m
}

// IndexedChunks records the outcome of one ingest.
func (m *Metrics) IndexedChunks(upserted, skipped int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(float64(upserted))
	m.ChunksSkipped.Add(float64(skipped))
}

// Ingest counts an ingest request by result ("ok" or "error").
func (m *Metrics) Ingest(result string) {
	if m == nil {
		return
	}
	m.IngestsTotal.WithLabelValues(result).Inc()
}

// EmbeddingFailed counts an embedding call that degraded to an empty vector.
func (m *Metrics) EmbeddingFailed() {
	if m == nil {
		return
	}
	m.EmbeddingFailures.Inc()
}

// SynthesisFailed counts a synthesis call that degraded to an empty answer.
func (m *Metrics) SynthesisFailed() {
	if m == nil {
		return
	}
	m.SynthesisFailures.Inc()
}

// VectorStoreFailed counts a failed vector store operation.
func (m *Metrics) VectorStoreFailed(op string) {
	if m == nil {
		return
	}
	m.VectorStoreErrors.WithLabelValues(op).Inc()
}

// Answer counts an answer by outcome.
func (m *Metrics) Answer(outcome string) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(outcome).Inc()
}

// ObserveProvider records how long a provider call took since start.
func (m *Metrics) ObserveProvider(provider, op string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// TurnInterrupted counts a discarded answer.
func (m *Metrics) TurnInterrupted() {
	if m == nil {
		return
	}
	m.InterruptedTurns.Inc()
}
