package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player plays one audio file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

// NewPlayer resolves a player by name ("speaker" or "none").
func NewPlayer(kind string) (Player, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "speaker":
		return NewSpeakerPlayer(), nil
	case "none", "nop":
		return NopPlayer{}, nil
	default:
		return nil, fmt.Errorf("unsupported player %q (expected speaker|none)", kind)
	}
}

// SpeakerPlayer plays WAV files on the default output device. The device is
// opened on first use at that file's sample rate; later files are resampled.
type SpeakerPlayer struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	opened bool
}

func NewSpeakerPlayer() *SpeakerPlayer { return &SpeakerPlayer{} }

func (p *SpeakerPlayer) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return fmt.Errorf("init speaker: %w", err)
		}
		p.rate = format.SampleRate
		p.opened = true
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// NopPlayer logs instead of playing; used headless and in CI.
type NopPlayer struct{}

func (NopPlayer) Play(_ context.Context, path string) error {
	info, err := ReadWAVInfoFile(path)
	if err != nil {
		return err
	}
	log.Printf("[audio] (muted) %s %dHz %s", path, info.SampleRate, info.Duration())
	return nil
}
