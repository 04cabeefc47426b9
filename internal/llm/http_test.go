package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestHTTPSourceConsumeSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, strings.Join([]string{
			": keepalive",
			"",
			"data: {\"delta\":\"Hel\"}",
			"",
			"data: {\"delta\":\"lo\\n\"}",
			"",
			"data: {\"type\":\"error\",\"message\":\"slow down\"}",
			"",
			"data: {\"delta\":\"World\"}",
			"",
			"data: [DONE]",
			"",
		}, "\n"))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, false)
	events, err := src.OpenStream(context.Background(), Request{UserInput: "hi"})
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	got := drain(events)

	var text strings.Builder
	var errorsSeen, completed int
	for _, ev := range got {
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.Text)
		case EventError:
			errorsSeen++
			if ev.Message != "slow down" {
				t.Fatalf("error message = %q, want %q", ev.Message, "slow down")
			}
		case EventCompleted:
			completed++
		}
	}
	if text.String() != "Hello\nWorld" {
		t.Fatalf("text = %q, want %q", text.String(), "Hello\nWorld")
	}
	if errorsSeen != 1 || completed != 1 {
		t.Fatalf("errors=%d completed=%d, want 1/1", errorsSeen, completed)
	}
	if got[len(got)-1].Type != EventCompleted {
		t.Fatalf("last event = %v, want completed", got[len(got)-1].Type)
	}
}

func TestHTTPSourceConsumeNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, "{\"delta\":\"Hi\"}\n there\n[DONE]\n")
	}))
	defer srv.Close()

	text, err := NewHTTPSource(srv.URL, false).Complete(context.Background(), Request{UserInput: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Hi there" {
		t.Fatalf("Complete() = %q, want %q", text, "Hi there")
	}
}

func TestHTTPSourceStrictInvalidJSONStopsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, "not-json\n{\"delta\":\"never\"}\n")
	}))
	defer srv.Close()

	events, err := NewHTTPSource(srv.URL, true).OpenStream(context.Background(), Request{UserInput: "hi"})
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	got := drain(events)
	if len(got) != 1 || got[0].Type != EventError {
		t.Fatalf("events = %+v, want a single error event", got)
	}
}

func TestHTTPSourcePlainJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"whole reply"}`)
	}))
	defer srv.Close()

	text, err := NewHTTPSource(srv.URL, false).Complete(context.Background(), Request{UserInput: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "whole reply" {
		t.Fatalf("Complete() = %q, want %q", text, "whole reply")
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewHTTPSource(srv.URL, false).OpenStream(context.Background(), Request{UserInput: "hi"}); err == nil {
		t.Fatalf("OpenStream() expected error for 502")
	}
}

func TestSourcesRejectEmptyInput(t *testing.T) {
	sources := map[string]Source{
		"mock":   NewMockSource(),
		"http":   NewHTTPSource("http://example.test", false),
		"openai": NewOpenAISource(Config{APIKey: "sk-test", Model: "gpt-4o-mini"}),
	}
	for name, src := range sources {
		if _, err := src.OpenStream(context.Background(), Request{UserInput: "  "}); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("%s OpenStream() error = %v, want ErrEmptyInput", name, err)
		}
	}
}

func TestNewSourceModes(t *testing.T) {
	if _, ok := mustSource(t, Config{Mode: "auto"}).(*MockSource); !ok {
		t.Fatalf("auto without credentials should fall back to mock")
	}
	if _, ok := mustSource(t, Config{Mode: "auto", APIKey: "sk"}).(*OpenAISource); !ok {
		t.Fatalf("auto with api key should use openai")
	}
	if _, ok := mustSource(t, Config{Mode: "http", HTTPURL: "http://x"}).(*HTTPSource); !ok {
		t.Fatalf("http mode should use HTTPSource")
	}
	if _, err := NewSource(Config{Mode: "openai"}); err == nil {
		t.Fatalf("openai mode without key should fail")
	}
	if _, err := NewSource(Config{Mode: "bogus"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}

func mustSource(t *testing.T, cfg Config) Source {
	t.Helper()
	src, err := NewSource(cfg)
	if err != nil {
		t.Fatalf("NewSource(%+v) error = %v", cfg, err)
	}
	return src
}
