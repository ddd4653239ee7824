// Package observability holds the Prometheus instrumentation for the
// gateway request path and the credential failover machinery.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gateway collectors. Construct once and share.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Rotations       *prometheus.CounterVec
	Exhaustions     *prometheus.CounterVec
	StreamChunks    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate",
			Name:      "requests_total",
			Help:      "Chat requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modelgate",
			Name:      "request_duration_seconds",
			Help:      "End-to-end chat request latency by provider.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		Rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate",
			Name:      "credential_rotations_total",
			Help:      "Credential rotations triggered by key errors.",
		}, []string{"provider", "reason"}),
		Exhaustions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate",
			Name:      "credential_exhaustions_total",
			Help:      "Requests that failed over every eligible credential.",
		}, []string{"provider"}),
		StreamChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate",
			Name:      "stream_chunks_total",
			Help:      "Normalized streaming chunks emitted to clients.",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.Requests, m.RequestDuration, m.Rotations, m.Exhaustions, m.StreamChunks)
	return m
}

// ObserveRequest records one finished chat request.
func (m *Metrics) ObserveRequest(provider, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(provider, outcome).Inc()
	m.RequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// RecordRotation records one credential rotation.
func (m *Metrics) RecordRotation(provider, reason string) {
	if m == nil {
		return
	}
	m.Rotations.WithLabelValues(provider, reason).Inc()
}

// RecordExhaustion records one failover exhaustion.
func (m *Metrics) RecordExhaustion(provider string) {
	if m == nil {
		return
	}
	m.Exhaustions.WithLabelValues(provider).Inc()
}

// RecordStreamChunk records one emitted stream chunk.
func (m *Metrics) RecordStreamChunk(provider string) {
	if m == nil {
		return
	}
	m.StreamChunks.WithLabelValues(provider).Inc()
}
