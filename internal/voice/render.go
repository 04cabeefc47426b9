package voice

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/rvcchat/internal/audio"
	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/tts"
)

// Render stages reported in RenderError.
const (
	StageTTS   = "tts"
	StageWrite = "write"
	StageRVC   = "rvc"
)

// Layout names the per-segment audio files of a conversation.
type Layout struct {
	InputDir  string
	OutputDir string
}

func (l Layout) InputPath(name string, index int) string {
	return filepath.Join(l.InputDir, name+strconv.Itoa(index)+".wav")
}

func (l Layout) OutputPath(name string, index int) string {
	return filepath.Join(l.OutputDir, name+strconv.Itoa(index)+".wav")
}

// Job builds the render job for a segment.
func (l Layout) Job(name string, seg Segment) RenderJob {
	return RenderJob{
		Index:      seg.Index,
		Text:       seg.Text,
		InputPath:  l.InputPath(name, seg.Index),
		OutputPath: l.OutputPath(name, seg.Index),
	}
}

// RenderJob is the background work for one segment.
type RenderJob struct {
	Index      int
	Text       string
	InputPath  string
	OutputPath string
}

// RenderError reports which stage of a segment render failed.
type RenderError struct {
	Index int
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("segment %d %s: %v", e.Index, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Signal reports completion of one segment's render.
type Signal interface {
	Done() <-chan struct{}
	Err() error
}

type renderEntry struct {
	job    RenderJob
	signal Signal
}

// RenderSet tracks the dispatched renders of one turn by segment index.
type RenderSet struct {
	mu      sync.Mutex
	entries map[int]renderEntry
}

func NewRenderSet() *RenderSet {
	return &RenderSet{entries: make(map[int]renderEntry)}
}

func (s *RenderSet) add(job RenderJob, sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[job.Index] = renderEntry{job: job, signal: sig}
}

// Lookup returns the job and completion signal for a segment.
func (s *RenderSet) Lookup(index int) (RenderJob, Signal, bool) {
	if s == nil {
		return RenderJob{}, nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[index]
	return e.job, e.signal, ok
}

func (s *RenderSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Wait blocks until every dispatched render has finished or ctx ends.
func (s *RenderSet) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	indices := make([]int, 0, len(s.entries))
	for i := range s.entries {
		indices = append(indices, i)
	}
	s.mu.Unlock()
	sort.Ints(indices)

	for _, i := range indices {
		_, sig, _ := s.Lookup(i)
		select {
		case <-sig.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for segment %d: %w", i, ctx.Err())
		}
	}
	return nil
}

// Renderer synthesizes a segment to the input path, then converts it to the
// output path.
type Renderer struct {
	TTS       tts.Synthesizer
	Converter Converter
	// Style is the delivery instruction passed to the synthesizer.
	Style   string
	Metrics *observability.Metrics
}

func (r *Renderer) Render(ctx context.Context, job RenderJob) error {
	text := speakableText(job.Text)
	if text == "" {
		return ErrNothingToRender
	}

	start := time.Now()
	wav, err := r.TTS.Synthesize(ctx, text, r.Style)
	if err != nil {
		return r.fail(job, StageTTS, err)
	}
	if err := audio.WriteFileAtomic(job.InputPath, wav); err != nil {
		return r.fail(job, StageWrite, err)
	}
	r.Metrics.ObserveRender(observability.StageTTS, time.Since(start))

	start = time.Now()
	if err := r.Converter.Convert(ctx, job.InputPath, job.OutputPath); err != nil {
		return r.fail(job, StageRVC, err)
	}
	r.Metrics.ObserveRender(observability.StageRVC, time.Since(start))

	log.Printf("[render] segment %d ready: %s (%q)", job.Index, job.OutputPath, truncate(text, 48))
	return nil
}

func (r *Renderer) fail(job RenderJob, stage string, err error) error {
	r.Metrics.ObserveRenderFailure(stage)
	return &RenderError{Index: job.Index, Stage: stage, Err: err}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
