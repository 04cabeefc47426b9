// Package voice turns a streamed chat reply into spoken audio: it splits the
// stream into line segments, renders each segment through TTS and voice
// conversion in the background, and plays the results strictly in order.
package voice

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingArgument is returned when a required input is blank or nil.
	ErrMissingArgument = errors.New("missing argument")
	// ErrNothingToRender marks a segment with no speakable text. Playback skips it.
	ErrNothingToRender = errors.New("nothing to render")
	// ErrPlaybackTimeout aborts the remaining playback queue of a turn.
	ErrPlaybackTimeout = errors.New("playback timeout")
)

// Converter rewrites a voice recording into the target voice.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// SegmentRenderer produces the converted audio file for one segment.
type SegmentRenderer interface {
	Render(ctx context.Context, job RenderJob) error
}

// Observer receives progress notifications for a single turn. Methods may be
// called from render goroutines and must be safe for concurrent use.
type Observer interface {
	TextDelta(text string)
	SegmentEmitted(seg Segment)
	StreamError(message string)
	RenderFinished(job RenderJob, err error, elapsed time.Duration)
	PlaybackStarted(index int)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) TextDelta(string) {}
func (NopObserver) SegmentEmitted(Segment) {}
func (NopObserver) StreamError(string) {}
func (NopObserver) RenderFinished(RenderJob, error, time.Duration) {}
func (NopObserver) PlaybackStarted(int) {}
