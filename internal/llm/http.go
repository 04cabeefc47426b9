package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSource streams deltas from any endpoint speaking SSE or NDJSON.
type HTTPSource struct {
	url    string
	strict bool
	client *http.Client
}

func NewHTTPSource(url string, strict bool) *HTTPSource {
	return &HTTPSource{
		url:    strings.TrimSpace(url),
		strict: strict,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (s *HTTPSource) post(ctx context.Context, req Request) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson, application/json")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, fmt.Errorf("chat http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return res, nil
}

func (s *HTTPSource) OpenStream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := s.post(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		defer res.Body.Close()

		ct := strings.ToLower(res.Header.Get("Content-Type"))
		switch {
		case strings.Contains(ct, "text/event-stream"):
			s.consumeSSE(ctx, res.Body, out)
		case strings.Contains(ct, "application/x-ndjson"):
			s.consumeNDJSON(ctx, res.Body, out)
		default:
			body, err := io.ReadAll(res.Body)
			if err != nil {
				send(ctx, out, ErrorEvent(fmt.Sprintf("read response: %v", err)))
				return
			}
			if text := decodeWholeBody(body); text != "" {
				if !send(ctx, out, TextDelta(text)) {
					return
				}
			}
			send(ctx, out, Completed())
		}
	}()
	return out, nil
}

func (s *HTTPSource) Complete(ctx context.Context, req Request) (string, error) {
	events, err := s.OpenStream(ctx, req)
	if err != nil {
		return "", err
	}
	return Collect(events), nil
}

func (s *HTTPSource) consumeSSE(ctx context.Context, body io.Reader, out chan<- Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			send(ctx, out, Completed())
			return
		}
		if !s.emitLine(ctx, data, out) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, out, ErrorEvent(fmt.Sprintf("stream read: %v", err)))
		return
	}
	send(ctx, out, Completed())
}

func (s *HTTPSource) consumeNDJSON(ctx context.Context, body io.Reader, out chan<- Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "[DONE]" {
			send(ctx, out, Completed())
			return
		}
		if !s.emitLine(ctx, line, out) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, out, ErrorEvent(fmt.Sprintf("stream read: %v", err)))
		return
	}
	send(ctx, out, Completed())
}

// emitLine decodes one payload line and forwards it. It returns false when the
// consumer went away or a strict decode failed.
func (s *HTTPSource) emitLine(ctx context.Context, line string, out chan<- Event) bool {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		if s.strict {
			send(ctx, out, ErrorEvent(fmt.Sprintf("invalid stream payload: %v", err)))
			return false
		}
		return send(ctx, out, TextDelta(line))
	}

	if t, _ := obj["type"].(string); t == "error" {
		msg, _ := obj["message"].(string)
		if msg == "" {
			msg = "upstream error"
		}
		return send(ctx, out, ErrorEvent(msg))
	}
	delta := extractText(obj)
	if delta == "" {
		return true
	}
	return send(ctx, out, TextDelta(delta))
}

func decodeWholeBody(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return strings.TrimSpace(string(body))
	}
	return extractText(obj)
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"delta", "text", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
