package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeOpenAI(t *testing.T, seen *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if seen != nil {
			*seen = body
		}
		if stream, _ := body["stream"].(bool); !stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"full reply"},"finish_reason":"stop"}]}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hello", "\\n", "World"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%s\"}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	})
	return httptest.NewServer(mux)
}

func TestOpenAISourceStreamsDeltasThenCompleted(t *testing.T) {
	var seen map[string]any
	srv := newFakeOpenAI(t, &seen)
	defer srv.Close()

	src := NewOpenAISource(Config{APIKey: "sk-good", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	events, err := src.OpenStream(context.Background(), Request{
		SystemPrompt: "be brief",
		Memory:       "\n[user]:earlier\n[You]:ok",
		UseMemory:    true,
		UserInput:    "hi",
	})
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	got := drain(events)
	if len(got) != 4 {
		t.Fatalf("events = %+v, want 3 deltas + completed", got)
	}
	if got[3].Type != EventCompleted {
		t.Fatalf("last event = %q, want completed", got[3].Type)
	}
	var text strings.Builder
	for _, ev := range got[:3] {
		text.WriteString(ev.Text)
	}
	if text.String() != "Hello\nWorld" {
		t.Fatalf("text = %q", text.String())
	}

	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages = %v, want system+assistant+user", msgs)
	}
	if role := msgs[1].(map[string]any)["role"]; role != "assistant" {
		t.Fatalf("memory role = %v, want assistant", role)
	}
}

func TestOpenAISourceOmitsMemoryWhenDisabled(t *testing.T) {
	var seen map[string]any
	srv := newFakeOpenAI(t, &seen)
	defer srv.Close()

	src := NewOpenAISource(Config{APIKey: "sk-good", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	text, err := src.Complete(context.Background(), Request{SystemPrompt: "s", Memory: "old", UseMemory: false, UserInput: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "full reply" {
		t.Fatalf("Complete() = %q, want %q", text, "full reply")
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want system+user", msgs)
	}
}

func TestOpenAISourceHealth(t *testing.T) {
	srv := newFakeOpenAI(t, nil)
	defer srv.Close()

	good := NewOpenAISource(Config{APIKey: "sk-good", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	if err := good.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	bad := NewOpenAISource(Config{APIKey: "sk-bad", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	if err := bad.Health(context.Background()); err == nil {
		t.Fatalf("Health() expected error for bad key")
	}
}
