package app

import (
	"errors"
	"sync"
	"time"

	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/protocol"
	"github.com/ent0n29/rvcchat/internal/voice"
)

// Publisher receives protocol events for live subscribers.
type Publisher interface {
	Publish(msg any)
}

// turnObserver forwards one turn's progress to the event hub and the
// latency window.
type turnObserver struct {
	turnID  string
	started time.Time
	pub     Publisher
	metrics *observability.Metrics

	mu           sync.Mutex
	firstDelta   bool
	firstSegment bool
	firstAudio   bool
}

func (o *turnObserver) publish(msg any) {
	if o.pub != nil {
		o.pub.Publish(msg)
	}
}

func (o *turnObserver) TextDelta(text string) {
	o.mu.Lock()
	first := !o.firstDelta
	o.firstDelta = true
	o.mu.Unlock()
	if first {
		o.metrics.ObserveTurnStage(observability.StageFirstDelta, time.Since(o.started))
	}
	o.publish(protocol.TextDelta{Type: protocol.TypeTextDelta, TurnID: o.turnID, TextDelta: text})
}

func (o *turnObserver) SegmentEmitted(seg voice.Segment) {
	o.mu.Lock()
	first := !o.firstSegment
	o.firstSegment = true
	o.mu.Unlock()
	if first {
		o.metrics.ObserveTurnStage(observability.StageFirstSegment, time.Since(o.started))
	}
	o.publish(protocol.SegmentEmitted{Type: protocol.TypeSegmentEmitted, TurnID: o.turnID, Index: seg.Index, Text: seg.Text})
}

func (o *turnObserver) StreamError(message string) {
	o.publish(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		TurnID:    o.turnID,
		Code:      "stream_error",
		Source:    "chat",
		Retryable: true,
		Detail:    message,
	})
}

func (o *turnObserver) RenderFinished(job voice.RenderJob, err error, elapsed time.Duration) {
	switch {
	case err == nil:
		o.publish(protocol.RenderDone{Type: protocol.TypeRenderDone, TurnID: o.turnID, Index: job.Index, OutputPath: job.OutputPath, ElapsedMs: elapsed.Milliseconds()})
	case errors.Is(err, voice.ErrNothingToRender):
		o.publish(protocol.RenderDone{Type: protocol.TypeRenderDone, TurnID: o.turnID, Index: job.Index, Skipped: true, ElapsedMs: elapsed.Milliseconds()})
	default:
		stage := "unknown"
		var rerr *voice.RenderError
		if errors.As(err, &rerr) {
			stage = rerr.Stage
		}
		o.publish(protocol.RenderFailed{Type: protocol.TypeRenderFailed, TurnID: o.turnID, Index: job.Index, Stage: stage, Detail: err.Error()})
	}
}

func (o *turnObserver) PlaybackStarted(index int) {
	o.mu.Lock()
	first := !o.firstAudio
	o.firstAudio = true
	o.mu.Unlock()
	if first {
		o.metrics.ObserveFirstAudioLatency(time.Since(o.started))
	}
	o.publish(protocol.PlaybackStarted{Type: protocol.TypePlaybackStarted, TurnID: o.turnID, Index: index})
}
