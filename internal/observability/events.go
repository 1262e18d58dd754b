package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultEventBuffer is the per-subscriber channel capacity.
const DefaultEventBuffer = 64

// EventType names a telemetry event.
type EventType string

const (
	EventStarted   EventType = "tool.started"
	EventCompleted EventType = "tool.completed"
	EventFailed    EventType = "tool.failed"
	EventCacheHit  EventType = "tool.cache_hit"
	EventRejected  EventType = "tool.rejected"
)

// Event is one telemetry record broadcast to subscribers.
type Event struct {
	Type       EventType `json:"type"`
	Operation  string    `json:"operation"`
	Tool       string    `json:"tool"`
	Time       time.Time `json:"time"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Success    bool      `json:"success"`
	Retries    int       `json:"retries,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// EventHub fans telemetry events out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	next        uint64
	buffer      int
	closed      bool

	dropped atomic.Int64
}

// NewEventHub creates a hub; non-positive buffer uses DefaultEventBuffer.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &EventHub{
		subscribers: make(map[uint64]chan Event),
		buffer:      buffer,
	}
}

// Subscribe registers a listener. Call the cleanup function to stop
// receiving events; it closes the channel and is safe to call twice.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subscribers[id] = ch
	h.mu.Unlock()

	cleanup := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, cleanup
}

// Publish delivers event to every subscriber with room in its buffer.
func (h *EventHub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (h *EventHub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber. Later subscriptions get a closed
// channel.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
