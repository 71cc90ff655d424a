// Package metrics provides Prometheus metrics for the dictation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flemme"

// Session outcomes.
const (
	OutcomeDelivered      = "delivered"
	OutcomeCancelled      = "cancelled"
	OutcomeEmptyRecording = "empty_recording"
	OutcomeNoSpeech       = "no_speech"
	OutcomeEmptyText      = "empty_text"
	OutcomeCaptureError   = "capture_error"
	OutcomeVADError       = "vad_error"
	OutcomeTranscribeErr  = "transcribe_error"
	OutcomeDeliveryError  = "delivery_error"
)

// Metrics holds all Prometheus metrics for the process.
type Metrics struct {
	// Session metrics
	SessionsTotal     *prometheus.CounterVec
	RecordingDuration prometheus.Histogram
	SpeechRatio       prometheus.Histogram

	// Stage metrics
	StageLatency *prometheus.HistogramVec

	// Model metrics
	ModelLoads *prometheus.CounterVec

	// Rewrite metrics
	RewritesTotal    prometheus.Counter
	RewriteFallbacks *prometheus.CounterVec
}

// DefaultMetrics is registered on the default Prometheus registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Dictation sessions by outcome",
		}, []string{"outcome"}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of captured audio after resampling",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		SpeechRatio: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_ratio",
			Help:      "Fraction of padded audio kept by the voice activity filter",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of pipeline stages",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Speech model load attempts by result",
		}, []string{"result"}),
		RewritesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Successful rewrites",
		}),
		RewriteFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_fallbacks_total",
			Help:      "Rewrites that fell back to the raw transcript",
		}, []string{"reason"}),
	}
}

// Session records a finished session.
func (m *Metrics) Session(outcome string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// Stage observes the latency of a pipeline stage started at start.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Recording observes captured audio duration and the VAD keep ratio.
func (m *Metrics) Recording(d time.Duration, speechRatio float64) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(d.Seconds())
	m.SpeechRatio.Observe(speechRatio)
}

// ModelLoad counts a model load attempt.
func (m *Metrics) ModelLoad(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ModelLoads.WithLabelValues(result).Inc()
}

// Rewrite counts a successful rewrite.
func (m *Metrics) Rewrite() {
	if m == nil {
		return
	}
	m.RewritesTotal.Inc()
}

// RewriteFallback counts a fallback to the raw transcript.
func (m *Metrics) RewriteFallback(reason string) {
	if m == nil {
		return
	}
	m.RewriteFallbacks.WithLabelValues(reason).Inc()
}
