package httpapi

import (
	"sync"

	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/protocol"
)

// Hub fans turn events out to every connected websocket subscriber.
// Publish never blocks: a subscriber whose queue is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan any]struct{}
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{subs: make(map[chan any]struct{}), metrics: metrics}
}

func (h *Hub) Subscribe(buffer int) chan any {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan any, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Publish(msg any) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			if h.metrics != nil {
				h.metrics.WSMessages.WithLabelValues("dropped_" + string(protocol.TypeOf(msg))).Inc()
			}
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
