package tts

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/ent0n29/rvcchat/internal/audio"
)

// MockSynthesizer renders a short tone per segment so the full pipeline can
// run without network access.
type MockSynthesizer struct {
	SampleRate int
	PerRune    time.Duration
	MaxLength  time.Duration
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{
		SampleRate: 24000,
		PerRune:    30 * time.Millisecond,
		MaxLength:  4 * time.Second,
	}
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	length := time.Duration(len([]rune(text))) * s.PerRune
	if length > s.MaxLength {
		length = s.MaxLength
	}
	samples := int(int64(s.SampleRate) * int64(length) / int64(time.Second))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(0.2 * math.MaxInt16 * math.Sin(2*math.Pi*440*float64(i)/float64(s.SampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAVPCM16LE(pcm, s.SampleRate)
}
