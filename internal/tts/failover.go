package tts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
)

// FailoverSynthesizer prefers the primary backend and switches to the fallback
// when a primary call fails. Once the fallback succeeds it stays active until it
// fails; then the primary is retried.
type FailoverSynthesizer struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func NewFailoverSynthesizer(primary, fallback Synthesizer) *FailoverSynthesizer {
	return &FailoverSynthesizer{primary: primary, fallback: fallback}
}

func (s *FailoverSynthesizer) Synthesize(ctx context.Context, text, style string) ([]byte, error) {
	if s.fallbackActive.Load() {
		audio, fbErr := s.fallback.Synthesize(ctx, text, style)
		if fbErr == nil {
			return audio, nil
		}
		// Fallback failed after being active; try primary again.
		audio, prErr := s.primary.Synthesize(ctx, text, style)
		if prErr == nil {
			s.fallbackActive.Store(false)
			log.Printf("[tts] primary synthesizer recovered")
			return audio, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	audio, prErr := s.primary.Synthesize(ctx, text, style)
	if prErr == nil {
		return audio, nil
	}
	if errors.Is(prErr, ErrEmptyText) || ctx.Err() != nil {
		return nil, prErr
	}
	audio, fbErr := s.fallback.Synthesize(ctx, text, style)
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	log.Printf("[tts] primary synthesizer failed, switched to fallback: %v", prErr)
	return audio, nil
}

// FallbackActive reports whether calls currently go to the fallback backend.
func (s *FailoverSynthesizer) FallbackActive() bool {
	return s.fallbackActive.Load()
}
