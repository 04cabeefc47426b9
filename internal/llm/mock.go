package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockSource provides deterministic local replies when no model is configured.
type MockSource struct {
	// ChunkSize is the number of runes per streamed delta.
	ChunkSize int
}

func NewMockSource() *MockSource { return &MockSource{ChunkSize: 5} }

func (s *MockSource) OpenStream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	chunks := splitRunes(buildMockReply(req), s.ChunkSize)

	out := make(chan Event, len(chunks)+1)
	go func() {
		defer close(out)
		for _, c := range chunks {
			if !send(ctx, out, TextDelta(c)) {
				return
			}
		}
		send(ctx, out, Completed())
	}()
	return out, nil
}

func (s *MockSource) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	return buildMockReply(req), nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.UserInput)
	if !req.UseMemory {
		return fmt.Sprintf("I heard you: %s\nTell me more.", base)
	}

	var last string
	for _, line := range strings.Split(req.Memory, "\n") {
		if strings.HasPrefix(line, "[user]:") {
			last = strings.TrimSpace(strings.TrimPrefix(line, "[user]:"))
		}
	}
	if last == "" {
		return fmt.Sprintf("I heard you: %s\nTell me more.", base)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember: %s\nTell me more.", base, last)
}

func splitRunes(s string, size int) []string {
	if size <= 0 {
		size = 5
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
