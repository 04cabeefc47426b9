package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/rvcchat/internal/llm"
	"github.com/ent0n29/rvcchat/internal/memory"
	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/protocol"
	"github.com/ent0n29/rvcchat/internal/voice"
)

// QuitCommand ends the interactive loop.
const QuitCommand = ":q"

// TurnResult describes one completed voice turn.
type TurnResult struct {
	TurnID   string
	Text     string
	Segments int
	// PlaybackErr is set when playback stopped early. The turn still counts.
	PlaybackErr error
}

// Chat runs conversation turns against one conversation name.
type Chat struct {
	build     *BuildResult
	name      string
	layout    voice.Layout
	renderer  *voice.Renderer
	sequencer *voice.Sequencer
	// renderCtx outlives individual turns; cancelled on shutdown.
	renderCtx context.Context

	prev *voice.RenderSet
}

func NewChat(renderCtx context.Context, b *BuildResult) *Chat {
	cfg := b.Config
	c := &Chat{
		build:     b,
		name:      cfg.ConversationName,
		layout:    voice.Layout{InputDir: cfg.AudioInputDir, OutputDir: cfg.AudioOutputDir},
		renderCtx: renderCtx,
	}
	if b.TTS != nil && b.Engine != nil {
		c.renderer = &voice.Renderer{
			TTS:       b.TTS,
			Converter: b.Engine,
			Style:     cfg.TTSInstructions,
			Metrics:   b.Metrics,
		}
	}
	if b.Player != nil {
		c.sequencer = &voice.Sequencer{
			Player:  b.Player,
			Timeout: cfg.PlaybackTimeout(),
			Metrics: b.Metrics,
		}
	}
	return c
}

// Forget resets the conversation transcript to empty.
func (c *Chat) Forget(ctx context.Context) error {
	if err := c.build.Memory.Reset(ctx, c.name); err != nil {
		return err
	}
	_, err := c.build.Memory.Read(ctx, c.name)
	return err
}

func (c *Chat) request(ctx context.Context, input string) (llm.Request, error) {
	req := llm.Request{
		SystemPrompt: c.build.Config.SystemPrompt,
		UseMemory:    c.build.Config.UseMemory,
		UserInput:    input,
	}
	if err := req.Validate(); err != nil {
		return llm.Request{}, err
	}
	mem, err := c.build.Memory.Read(ctx, c.name)
	if err != nil {
		return llm.Request{}, fmt.Errorf("read memory: %w", err)
	}
	req.Memory = mem
	return req, nil
}

// Turn streams a reply, voices it segment by segment, plays it in order and
// records the exchange in memory.
func (c *Chat) Turn(ctx context.Context, input string) (TurnResult, error) {
	if c.renderer == nil || c.sequencer == nil {
		return TurnResult{}, errors.New("voice pipeline is not configured")
	}
	started := time.Now()
	turnID := uuid.NewString()
	metrics := c.build.Metrics
	obs := &turnObserver{turnID: turnID, started: started, pub: c.build.Hub, metrics: metrics}
	c.build.Hub.Publish(protocol.TurnStart{
		Type:         protocol.TypeTurnStart,
		TurnID:       turnID,
		Conversation: c.name,
		Input:        input,
		TSMs:         started.UnixMilli(),
	})

	req, err := c.request(ctx, input)
	if err != nil {
		c.endTurn(turnID, "invalid_input", 0, "")
		return TurnResult{}, err
	}

	if err := c.waitPrevious(ctx); err != nil {
		return TurnResult{}, err
	}
	for _, dir := range []string{c.layout.InputDir, c.layout.OutputDir} {
		if err := voice.CleanDirectory(dir, ""); err != nil {
			return TurnResult{}, err
		}
	}

	events, err := c.build.Source.OpenStream(ctx, req)
	if err != nil {
		metrics.Turns.WithLabelValues("stream_failed").Inc()
		c.endTurn(turnID, "stream_failed", 0, "")
		return TurnResult{}, fmt.Errorf("open chat stream: %w", err)
	}

	coord := &voice.Coordinator{
		Renderer:      c.renderer,
		Layout:        c.layout,
		Observer:      obs,
		Metrics:       metrics,
		RenderContext: c.renderCtx,
	}
	res, err := coord.Run(ctx, events, c.name)
	c.prev = res.Renders
	if err != nil {
		metrics.Turns.WithLabelValues("cancelled").Inc()
		c.endTurn(turnID, "cancelled", res.Segments, res.Text)
		return TurnResult{TurnID: turnID, Text: res.Text, Segments: res.Segments}, err
	}

	seq := *c.sequencer
	seq.Observer = obs
	playErr := seq.Play(ctx, res.Renders, c.name, res.Segments)
	if errors.Is(playErr, context.Canceled) {
		metrics.Turns.WithLabelValues("cancelled").Inc()
		c.endTurn(turnID, "cancelled", res.Segments, res.Text)
		return TurnResult{TurnID: turnID, Text: res.Text, Segments: res.Segments}, playErr
	}

	if err := c.build.Memory.Append(ctx, c.name, memory.FormatTurn(input, res.Text)); err != nil {
		log.Printf("[chat] memory append failed: %v", err)
	}

	outcome := "ok"
	if playErr != nil {
		outcome = "playback_aborted"
	}
	metrics.Turns.WithLabelValues(outcome).Inc()
	metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started))
	c.endTurn(turnID, outcome, res.Segments, res.Text)
	return TurnResult{TurnID: turnID, Text: res.Text, Segments: res.Segments, PlaybackErr: playErr}, nil
}

// TextTurn asks for a complete reply without voicing it.
func (c *Chat) TextTurn(ctx context.Context, input string) (string, error) {
	req, err := c.request(ctx, input)
	if err != nil {
		return "", err
	}
	reply, err := c.build.Source.Complete(ctx, req)
	if err != nil {
		c.build.Metrics.Turns.WithLabelValues("stream_failed").Inc()
		return "", err
	}
	if err := c.build.Memory.Append(ctx, c.name, memory.FormatTurn(input, reply)); err != nil {
		log.Printf("[chat] memory append failed: %v", err)
	}
	c.build.Metrics.Turns.WithLabelValues("ok").Inc()
	return reply, nil
}

// waitPrevious blocks until the last turn's renders have all finished so the
// audio directories can be cleared safely.
func (c *Chat) waitPrevious(ctx context.Context) error {
	if c.prev == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, c.build.Config.PlaybackTimeout())
	defer cancel()
	err := c.prev.Wait(wctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.Printf("[chat] previous turn still rendering, clearing anyway: %v", err)
	}
	c.prev = nil
	return nil
}

func (c *Chat) endTurn(turnID, reason string, segments int, text string) {
	c.build.Hub.Publish(protocol.TurnEnd{
		Type:     protocol.TypeTurnEnd,
		TurnID:   turnID,
		Reason:   reason,
		Segments: segments,
		Text:     text,
	})
}

// Run reads one user line per turn from in until EOF, ctx ends, or the
// user types QuitCommand. With voice false replies are printed only.
func (c *Chat) Run(ctx context.Context, in io.Reader, out io.Writer, withVoice bool) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	fmt.Fprint(out, "You: ")
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return <-readErr
			}
			line = l
		}

		input := strings.TrimSpace(line)
		if input == QuitCommand {
			return nil
		}
		if input == "" {
			fmt.Fprint(out, "You: ")
			continue
		}

		if withVoice {
			res, err := c.Turn(ctx, input)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[chat] turn failed: %v", err)
			} else {
				fmt.Fprintf(out, "%s\n---------------ALL DONE--------------\n", strings.TrimRight(res.Text, "\n"))
			}
		} else {
			reply, err := c.TextTurn(ctx, input)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[chat] turn failed: %v", err)
			} else {
				fmt.Fprintf(out, "%s\n", reply)
			}
		}
		fmt.Fprint(out, "You: ")
	}
}

// Close waits for in-flight renders of the last turn, bounded by ctx.
func (c *Chat) Close(ctx context.Context) error {
	if c.prev == nil {
		return nil
	}
	return c.prev.Wait(ctx)
}
