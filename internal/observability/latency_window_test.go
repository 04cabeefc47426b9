package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe("input_to_first_audio", 5000)
	w.Observe("input_to_first_audio", 7000)
	w.Observe("input_to_first_audio", 9000)
	w.Count("playback_timeout")
	w.Count("playback_timeout")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "input_to_first_audio" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "input_to_first_audio")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 9000 {
		t.Fatalf("LastMS = %.2f, want 9000", s.LastMS)
	}
	if s.P50MS != 7000 {
		t.Fatalf("P50MS = %.2f, want 7000", s.P50MS)
	}
	if s.P95MS <= 7000 || s.P95MS > 9000 {
		t.Fatalf("P95MS = %.2f, want (7000,9000]", s.P95MS)
	}
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if s.OverTarget != 1 {
		t.Fatalf("OverTarget = %d, want 1", s.OverTarget)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "playback_timeout" {
		t.Fatalf("Indicators[0].Name = %q, want %q", snap.Indicators[0].Name, "playback_timeout")
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want %d", snap.Indicators[0].Count, 2)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := newLatencyWindow(2)
	for _, v := range []float64{100, 200, 300} {
		w.Observe(StageTTS, v)
	}
	snap := w.Snapshot()
	if snap.Stages[0].Samples != 2 {
		t.Fatalf("Samples = %d, want 2", snap.Stages[0].Samples)
	}
	if snap.Stages[0].AvgMS != 250 {
		t.Fatalf("AvgMS = %.2f, want 250", snap.Stages[0].AvgMS)
	}
	if snap.Stages[0].LastMS != 300 {
		t.Fatalf("LastMS = %.2f, want 300", snap.Stages[0].LastMS)
	}
}

func TestLatencyWindowResetAndIgnoresBadSamples(t *testing.T) {
	w := newLatencyWindow(4)
	w.Observe("", 10)
	w.Observe(StageRVC, -1)
	w.Count("  ")
	if snap := w.Snapshot(); len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot = %+v, want empty", snap)
	}
	w.Observe(StageRVC, 10)
	w.Count("playback_timeout")
	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot after reset = %+v", snap)
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	cases := map[float64]float64{0: 10, 0.5: 25, 1: 40, 0.95: 38.5}
	for q, want := range cases {
		if got := round2(quantile(sorted, q)); got != want {
			t.Fatalf("quantile(%v) = %v, want %v", q, got, want)
		}
	}
	if quantile(nil, 0.5) != 0 {
		t.Fatalf("quantile(nil) != 0")
	}
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("rvcchat_test")
	m.Turns.WithLabelValues("ok").Inc()
	m.ObserveRender(StageRVC, 1200*time.Millisecond)
	m.ObserveRenderFailure(StageTTS)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`rvcchat_test_turns_total{outcome="ok"} 1`,
		`rvcchat_test_render_failures_total{stage="segment_tts"} 1`,
		`rvcchat_test_render_stage_latency_ms_count{stage="segment_rvc"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != StageRVC {
		t.Fatalf("stages = %+v", snap.Stages)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRender(StageTTS, time.Second)
	m.ObserveIndicator("x")
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}
