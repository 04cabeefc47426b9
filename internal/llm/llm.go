package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when a request carries no user input.
var ErrEmptyInput = errors.New("missing user input")

// EventType tags the variants of a streamed chat event.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one item of a chat stream, consumed strictly in arrival order.
type Event struct {
	Type    EventType
	Text    string
	Message string
}

func TextDelta(text string) Event { return Event{Type: EventTextDelta, Text: text} }

func Completed() Event { return Event{Type: EventCompleted} }

func ErrorEvent(msg string) Event { return Event{Type: EventError, Message: msg} }

// Request is the normalized chat request sent to a Source.
type Request struct {
	SystemPrompt string `json:"system_prompt"`
	Memory       string `json:"memory,omitempty"`
	UseMemory    bool   `json:"use_memory"`
	UserInput    string `json:"input"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.UserInput) == "" {
		return ErrEmptyInput
	}
	return nil
}

// Source opens chat streams against a language model.
type Source interface {
	// OpenStream starts a streamed reply. The returned channel is closed after
	// the last event; a Completed event is sent when the model finished normally.
	OpenStream(ctx context.Context, req Request) (<-chan Event, error)
	// Complete returns the whole reply in one call.
	Complete(ctx context.Context, req Request) (string, error)
}

// HealthChecker is implemented by sources that can validate credentials up front.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config controls source construction.
type Config struct {
	Mode            string
	APIKey          string
	BaseURL         string
	Model           string
	ReasoningEffort string
	HTTPURL         string
	HTTPStrict      bool
}

func NewSource(cfg Config) (Source, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAISource(cfg), nil
		}
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPSource(cfg.HTTPURL, cfg.HTTPStrict), nil
		}
		return NewMockSource(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("openai API key is required for openai mode")
		}
		return NewOpenAISource(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("chat HTTP url is required for http mode")
		}
		return NewHTTPSource(cfg.HTTPURL, cfg.HTTPStrict), nil
	case "mock":
		return NewMockSource(), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider %q", cfg.Mode)
	}
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a stream into its concatenated text, ignoring error events.
func Collect(events <-chan Event) string {
	var b strings.Builder
	for ev := range events {
		if ev.Type == EventTextDelta {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}
