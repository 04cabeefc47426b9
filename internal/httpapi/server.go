package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/rvcchat/internal/config"
	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/protocol"
)

// TranscriptReader reads a conversation's stored transcript.
type TranscriptReader interface {
	Read(ctx context.Context, conversationID string) (string, error)
}

// Server is the optional local listener used to watch a running chat.
type Server struct {
	cfg         config.Config
	metrics     *observability.Metrics
	hub         *Hub
	transcripts TranscriptReader
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, metrics *observability.Metrics, hub *Hub, transcripts TranscriptReader) *Server {
	return &Server{
		cfg:         cfg,
		metrics:     metrics,
		hub:         hub,
		transcripts: transcripts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers; non-browser clients omit Origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfLatencyReset)
	r.Get("/v1/transcript", s.handleTranscript)
	r.Get("/v1/transcript/{name}", s.handleTranscript)
	r.Get("/v1/events", s.handleEventsWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"conversation": s.cfg.ConversationName,
		"chat":         s.cfg.ChatProvider,
		"tts":          s.cfg.TTSProvider,
		"rvc":          s.cfg.RVCBackend,
		"memory":       s.cfg.MemoryBackend,
		"subscribers":  s.hub.Subscribers(),
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		name = s.cfg.ConversationName
	}
	if s.transcripts == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcript store not configured")
		return
	}
	text, err := s.transcripts.Read(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_read_failed", err.Error())
		return
	}
	text, redacted := redactTranscript(text)
	if redacted {
		s.metrics.ObserveIndicator("transcript_redacted")
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation": name,
		"transcript":   text,
		"redacted":     redacted,
	})
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.hub.Subscribe(256)
	defer s.hub.Unsubscribe(events)

	// Replies to client messages share the writer goroutine with hub events.
	replies := make(chan any, 16)
	replies <- protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "connected", Detail: s.cfg.ConversationName}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case m, ok := <-events:
				if !ok {
					return
				}
				msg = m
			case m := <-replies:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			s.metrics.WSMessages.WithLabelValues(string(protocol.TypeOf(msg))).Inc()
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		switch {
		case err != nil:
			reply = protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			}
		case parsed.(protocol.ClientControl).Action == "ping":
			reply = protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"}
		default:
			reply = protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "unsupported_action",
				Source: "gateway",
				Detail: parsed.(protocol.ClientControl).Action,
			}
		}
		select {
		case replies <- reply:
		default:
			// Writer is saturated; drop the reply rather than block reads.
		}
	}

	cancel()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
