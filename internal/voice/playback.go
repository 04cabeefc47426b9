package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ent0n29/rvcchat/internal/audio"
	"github.com/ent0n29/rvcchat/internal/observability"
)

// DefaultSegmentTimeout is how long playback waits for one segment: 360 polls
// of 500ms.
const DefaultSegmentTimeout = 360 * 500 * time.Millisecond

// Sequencer plays the segments of a turn strictly in index order.
type Sequencer struct {
	Player audio.Player
	// Timeout bounds the wait for each segment's render.
	Timeout  time.Duration
	Observer Observer
	Metrics  *observability.Metrics
}

// Play waits for each segment 0..count-1 in turn and plays its converted
// file. A segment that times out or failed to render ends playback for the
// rest of the turn, even if later segments are ready. Segments with nothing
// to say are skipped.
func (s *Sequencer) Play(ctx context.Context, renders *RenderSet, name string, count int) error {
	if name == "" || renders == nil || s.Player == nil {
		return fmt.Errorf("%w: conversation name, renders and player are required", ErrMissingArgument)
	}
	obs := s.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSegmentTimeout
	}

	for i := 0; i < count; i++ {
		job, sig, ok := renders.Lookup(i)
		if !ok {
			log.Printf("[playback] segment %d of %s was never dispatched, stopping", i, name)
			return fmt.Errorf("%w: segment %d was never dispatched", ErrPlaybackTimeout, i)
		}

		timer := time.NewTimer(timeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			log.Printf("[playback] segment %d of %s not ready after %s, dropping the rest of the turn", i, name, timeout)
			if s.Metrics != nil {
				s.Metrics.PlaybackTimeouts.Inc()
				s.Metrics.ObserveIndicator("playback_timeout")
			}
			return fmt.Errorf("%w: segment %d after %s", ErrPlaybackTimeout, i, timeout)
		case <-sig.Done():
			timer.Stop()
		}

		if err := sig.Err(); err != nil {
			if errors.Is(err, ErrNothingToRender) {
				continue
			}
			log.Printf("[playback] segment %d of %s failed to render, dropping the rest of the turn: %v", i, name, err)
			return err
		}

		obs.PlaybackStarted(i)
		if err := s.Player.Play(ctx, job.OutputPath); err != nil {
			log.Printf("[playback] segment %d of %s: %v", i, name, err)
			return fmt.Errorf("play segment %d: %w", i, err)
		}
	}
	return nil
}

// Replay plays count segment files already on disk, polling for each one the
// way playback worked before renders reported completion.
func (s *Sequencer) Replay(ctx context.Context, layout Layout, name string, count int, interval time.Duration, attempts int) error {
	if name == "" || s.Player == nil {
		return fmt.Errorf("%w: conversation name and player are required", ErrMissingArgument)
	}
	for i := 0; i < count; i++ {
		path := layout.OutputPath(name, i)
		if err := WaitForFile(ctx, path, interval, attempts); err != nil {
			log.Printf("[playback] %s: %v", path, err)
			return err
		}
		if err := s.Player.Play(ctx, path); err != nil {
			return fmt.Errorf("play %s: %w", path, err)
		}
	}
	return nil
}
