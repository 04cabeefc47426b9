// Command rvcwatch follows a running rvcchat listener: it prints the live turn
// events from /v1/events and, when done, the per-stage latency window.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/protocol"
)

type options struct {
	baseURL   string
	turns     int
	idle      time.Duration
	verbose   bool
	showStats bool
}

type wsEnvelope struct {
	Type     string `json:"type"`
	TurnID   string `json:"turn_id"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Delta    string `json:"text_delta"`
	Input    string `json:"input"`
	TSMs     int64  `json:"ts_ms"`
	Stage    string `json:"stage"`
	Detail   string `json:"detail"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
	Segments int    `json:"segments"`
	Skipped  bool   `json:"skipped"`
	Elapsed  int64  `json:"elapsed_ms"`
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvcwatch: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "rvcwatch: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var idleMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "rvcchat listener base URL")
	flag.IntVar(&cfg.turns, "turns", 0, "exit after this many turns end (0 = run until interrupted)")
	flag.IntVar(&idleMS, "idle-timeout-ms", 0, "exit when no event arrives for this long (0 = never)")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print text deltas and render timings")
	flag.BoolVar(&cfg.showStats, "stats", true, "print the latency window on exit")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns < 0 {
		return options{}, fmt.Errorf("turns must be >= 0")
	}
	if idleMS > 0 {
		cfg.idle = time.Duration(idleMS) * time.Millisecond
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	tracker := newTurnTracker(os.Stdout, cfg.verbose)
	for cfg.turns == 0 || tracker.completed < cfg.turns {
		if cfg.idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(cfg.idle))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				fmt.Println("rvcwatch: idle timeout")
				break
			}
			return fmt.Errorf("ws read: %w", err)
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		tracker.handle(env, time.Now())
	}

	if cfg.showStats {
		snap, err := fetchLatency(cfg.baseURL)
		if err != nil {
			return fmt.Errorf("fetch latency: %w", err)
		}
		printLatency(os.Stdout, snap)
	}
	return nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events"
	return u.String(), nil
}

// turnTracker prints a line per notable event and a summary per finished turn.
type turnTracker struct {
	out       io.Writer
	verbose   bool
	completed int

	started    map[string]time.Time
	firstAudio map[string]time.Duration
	failures   map[string]int
}

func newTurnTracker(out io.Writer, verbose bool) *turnTracker {
	return &turnTracker{
		out:        out,
		verbose:    verbose,
		started:    make(map[string]time.Time),
		firstAudio: make(map[string]time.Duration),
		failures:   make(map[string]int),
	}
}

func (t *turnTracker) handle(env wsEnvelope, now time.Time) {
	short := env.TurnID
	if len(short) > 8 {
		short = short[:8]
	}
	switch env.Type {
	case string(protocol.TypeTurnStart):
		start := now
		if env.TSMs > 0 {
			start = time.UnixMilli(env.TSMs)
		}
		t.started[env.TurnID] = start
		fmt.Fprintf(t.out, "[%s] > %s\n", short, env.Input)
	case string(protocol.TypeTextDelta):
		if t.verbose {
			fmt.Fprint(t.out, env.Delta)
		}
	case string(protocol.TypeSegmentEmitted):
		fmt.Fprintf(t.out, "[%s] segment %d: %q\n", short, env.Index, env.Text)
	case string(protocol.TypeRenderDone):
		if t.verbose {
			fmt.Fprintf(t.out, "[%s] segment %d rendered in %dms (skipped=%v)\n", short, env.Index, env.Elapsed, env.Skipped)
		}
	case string(protocol.TypeRenderFailed):
		t.failures[env.TurnID]++
		fmt.Fprintf(t.out, "[%s] segment %d failed at %s: %s\n", short, env.Index, env.Stage, env.Detail)
	case string(protocol.TypePlaybackStarted):
		if _, seen := t.firstAudio[env.TurnID]; !seen {
			if start, ok := t.started[env.TurnID]; ok {
				t.firstAudio[env.TurnID] = now.Sub(start)
			}
		}
	case string(protocol.TypeErrorEvent):
		fmt.Fprintf(t.out, "[%s] error code=%s detail=%s\n", short, env.Code, env.Detail)
	case string(protocol.TypeTurnEnd):
		t.completed++
		line := fmt.Sprintf("[%s] turn end reason=%s segments=%d", short, env.Reason, env.Segments)
		if d, ok := t.firstAudio[env.TurnID]; ok {
			line += fmt.Sprintf(" first_audio=%dms", d.Milliseconds())
		}
		if n := t.failures[env.TurnID]; n > 0 {
			line += fmt.Sprintf(" render_failures=%d", n)
		}
		fmt.Fprintln(t.out, line)
		delete(t.started, env.TurnID)
		delete(t.firstAudio, env.TurnID)
		delete(t.failures, env.TurnID)
	}
}

func fetchLatency(baseURL string) (observability.TurnStageSnapshot, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Get(baseURL + "/v1/perf/latency")
	if err != nil {
		return observability.TurnStageSnapshot{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return observability.TurnStageSnapshot{}, fmt.Errorf("status %d", res.StatusCode)
	}
	var snap observability.TurnStageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return observability.TurnStageSnapshot{}, err
	}
	return snap, nil
}

func printLatency(out io.Writer, snap observability.TurnStageSnapshot) {
	fmt.Fprintf(out, "%-24s %7s %9s %9s %9s %9s\n", "stage", "samples", "p50_ms", "p95_ms", "target", "last_ms")
	stages := append([]observability.TurnStageStats(nil), snap.Stages...)
	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })
	for _, s := range stages {
		mark := ""
		if s.TargetP95MS > 0 && s.P95MS > s.TargetP95MS {
			mark = " !"
		}
		fmt.Fprintf(out, "%-24s %7d %9.0f %9.0f %9.0f %9.0f%s\n", s.Stage, s.Samples, s.P50MS, s.P95MS, s.TargetP95MS, s.LastMS, mark)
	}
	for _, ind := range snap.Indicators {
		fmt.Fprintf(out, "indicator %s = %d\n", ind.Name, ind.Count)
	}
}
