package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn stage names recorded in the latency window.
const (
	StageFirstDelta   = "input_to_first_delta"
	StageFirstSegment = "input_to_first_segment"
	StageTTS          = "segment_tts"
	StageRVC          = "segment_rvc"
	StageFirstAudio   = "input_to_first_audio"
	StageTurnTotal    = "turn_total"
)

// Metrics groups all Prometheus instruments used by the voice chat loop.
type Metrics struct {
	registry *prometheus.Registry

	Turns             *prometheus.CounterVec
	Segments          prometheus.Counter
	StreamErrors      prometheus.Counter
	RenderFailures    *prometheus.CounterVec
	RenderLatency     *prometheus.HistogramVec
	FirstAudioLatency prometheus.Histogram
	PlaybackTimeouts  prometheus.Counter
	WSMessages        *prometheus.CounterVec

	window *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		Segments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Reply segments emitted by the segmenter.",
		}),
		StreamErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Error events observed on the model stream.",
		}),
		RenderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Segment render failures by stage.",
		}, []string{"stage"}),
		RenderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_stage_latency_ms",
			Help:      "Per-segment render latency by stage in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"stage"}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from user input to first converted segment playing, in milliseconds.",
			Buckets:   []float64{500, 1000, 2000, 3000, 5000, 8000, 12000, 20000},
		}),
		PlaybackTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_timeouts_total",
			Help:      "Turns whose playback queue was abandoned after waiting on a segment.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket event messages by type.",
		}, []string{"type"}),
		window: newLatencyWindow(512),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.window.Observe(StageFirstAudio, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRender(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.RenderLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
	m.window.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRenderFailure(stage string) {
	if m == nil {
		return
	}
	m.RenderFailures.WithLabelValues(stage).Inc()
	m.window.Count("render_failed_" + stage)
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.window.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.window.Count(name)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.window.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.window.Reset()
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
