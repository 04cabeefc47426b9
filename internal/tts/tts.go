// Package tts turns reply text into speech audio.
//
// Every backend returns a complete mono PCM16 WAV buffer so callers can write
// it straight to disk for the voice-conversion step.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Synthesizer converts text into WAV audio bytes. style is a free-form
// delivery instruction ("speak softly") that backends may ignore.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, style string) ([]byte, error)
}

// Config controls synthesizer construction.
type Config struct {
	Mode       string
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// Fallback names a second backend used when the primary fails.
	Fallback string
}

func NewSynthesizer(cfg Config) (Synthesizer, error) {
	primary, err := newBackend(cfg.Mode, cfg)
	if err != nil {
		return nil, err
	}
	fb := strings.ToLower(strings.TrimSpace(cfg.Fallback))
	if fb == "" || fb == "none" || strings.EqualFold(fb, cfg.Mode) {
		return primary, nil
	}
	fallback, err := newBackend(fb, cfg)
	if err != nil {
		return nil, fmt.Errorf("tts fallback: %w", err)
	}
	return NewFailoverSynthesizer(primary, fallback), nil
}

func newBackend(mode string, cfg Config) (Synthesizer, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "", "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAISynthesizer(cfg)
		}
		return NewMockSynthesizer(), nil
	case "openai":
		return NewOpenAISynthesizer(cfg)
	case "mock":
		return NewMockSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", mode)
	}
}

// ErrNoAPIKey is returned when a hosted backend is built without credentials.
var ErrNoAPIKey = errors.New("tts: API key required")

// ErrEmptyText is returned when asked to synthesize blank text.
var ErrEmptyText = errors.New("tts: empty text")
