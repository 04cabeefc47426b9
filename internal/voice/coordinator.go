package voice

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/rvcchat/internal/llm"
	"github.com/ent0n29/rvcchat/internal/observability"
)

// Result summarizes a consumed reply stream.
type Result struct {
	// Text is the concatenation of every segment text in index order.
	Text string
	// Segments is the number of segments emitted, including the final one.
	Segments int
	Texts    []string
	Renders  *RenderSet
}

// Coordinator consumes a reply stream, segments it, and starts one
// background render per segment. It never waits on a render.
type Coordinator struct {
	Renderer SegmentRenderer
	Layout   Layout
	Observer Observer
	Metrics  *observability.Metrics
	// RenderContext bounds the background renders. Renders outlive the
	// context passed to Run so a finished stream does not cut them short.
	RenderContext context.Context
}

// Run consumes events until Completed, a closed channel, or ctx ending.
// Error events are logged and consumption continues. On ctx cancellation the
// segments dispatched so far are returned together with ctx.Err().
func (c *Coordinator) Run(ctx context.Context, events <-chan llm.Event, name string) (Result, error) {
	if strings.TrimSpace(name) == "" || events == nil || c.Renderer == nil {
		return Result{}, fmt.Errorf("%w: conversation name, event stream and renderer are required", ErrMissingArgument)
	}

	seg := NewSegmenter()
	res := Result{Renders: NewRenderSet()}
	obs := c.observer()

	dispatch := func(s Segment) {
		res.Texts = append(res.Texts, s.Text)
		res.Segments++
		if c.Metrics != nil {
			c.Metrics.Segments.Inc()
		}
		obs.SegmentEmitted(s)
		c.dispatch(name, s, res.Renders, obs)
	}
	finish := func() Result {
		res.Text = strings.Join(res.Texts, "")
		return res
	}

	for {
		select {
		case <-ctx.Done():
			return finish(), ctx.Err()
		case ev, ok := <-events:
			if !ok {
				dispatch(seg.Finish())
				return finish(), nil
			}
			switch ev.Type {
			case llm.EventTextDelta:
				obs.TextDelta(ev.Text)
				for _, s := range seg.Feed(ev.Text) {
					dispatch(s)
				}
			case llm.EventCompleted:
				dispatch(seg.Finish())
				return finish(), nil
			case llm.EventError:
				log.Printf("[coordinator] stream error: %s", ev.Message)
				if c.Metrics != nil {
					c.Metrics.StreamErrors.Inc()
				}
				obs.StreamError(ev.Message)
			default:
				log.Printf("[coordinator] ignoring stream event %q", ev.Type)
			}
		}
	}
}

func (c *Coordinator) dispatch(name string, s Segment, renders *RenderSet, obs Observer) {
	job := c.Layout.Job(name, s)
	rctx := c.RenderContext
	if rctx == nil {
		rctx = context.Background()
	}
	task := NewTask(fmt.Sprintf("render %s#%d", name, s.Index), func() error {
		start := time.Now()
		err := c.Renderer.Render(rctx, job)
		obs.RenderFinished(job, err, time.Since(start))
		return err
	})
	renders.add(job, task)
	task.Start()
}

func (c *Coordinator) observer() Observer {
	if c.Observer == nil {
		return NopObserver{}
	}
	return c.Observer
}
