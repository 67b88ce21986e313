// Package metrics exposes Prometheus instrumentation for agent stream sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream outcomes used as the "outcome" label.
const (
	OutcomeSettled   = "settled"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Recorder holds the session collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry     *prometheus.Registry
	streams      *prometheus.CounterVec
	frames       *prometheus.CounterVec
	ignored      *prometheus.CounterVec
	decodeErrors prometheus.Counter
	live         prometheus.Gauge
	approvals    *prometheus.CounterVec
}

// New creates a Recorder registered on its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentconsole_streams_total",
			Help: "Agent streams finished, by outcome.",
		}, []string{"outcome"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentconsole_frames_total",
			Help: "Stream frames dispatched, by event kind.",
		}, []string{"kind"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentconsole_frames_ignored_total",
			Help: "Stream frames dropped without an event, by reason.",
		}, []string{"reason"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentconsole_decode_errors_total",
			Help: "Stream frames whose payload was not valid JSON.",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentconsole_stream_live",
			Help: "1 while a stream is being read.",
		}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentconsole_approvals_total",
			Help: "Approval requests resolved, by decision.",
		}, []string{"decision"}),
	}
	r.registry.MustRegister(r.streams, r.frames, r.ignored, r.decodeErrors, r.live, r.approvals)
	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StreamStarted marks a stream live.
func (r *Recorder) StreamStarted() {
	if r == nil {
		return
	}
	r.live.Set(1)
}

// StreamFinished records the outcome and marks the stream no longer live.
func (r *Recorder) StreamFinished(outcome string) {
	if r == nil {
		return
	}
	r.live.Set(0)
	r.streams.WithLabelValues(outcome).Inc()
}

// ApprovalResolved records an approval decision.
func (r *Recorder) ApprovalResolved(approved bool) {
	if r == nil {
		return
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	r.approvals.WithLabelValues(decision).Inc()
}

// FrameDispatched implements event.Recorder.
func (r *Recorder) FrameDispatched(kind string) {
	if r == nil {
		return
	}
	r.frames.WithLabelValues(kind).Inc()
}

// FrameDecodeFailed implements event.Recorder.
func (r *Recorder) FrameDecodeFailed() {
	if r == nil {
		return
	}
	r.decodeErrors.Inc()
}

// Reasons used as the "reason" label of ignored frames. The server's type
// string is never used as a label value.
const (
	IgnoredUntyped      = "untyped"
	IgnoredUnrecognized = "unrecognized"
)

// FrameIgnored implements event.Recorder.
func (r *Recorder) FrameIgnored(typ string) {
	if r == nil {
		return
	}
	reason := IgnoredUnrecognized
	if typ == "" {
		reason = IgnoredUntyped
	}
	r.ignored.WithLabelValues(reason).Inc()
}
