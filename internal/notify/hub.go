// Package notify fans out pipeline state transitions to observers.
// Delivery is best effort: a slow or absent subscriber never blocks the
// message pipeline.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// EventType labels a pipeline state transition.
type EventType string

const (
	EventAggregating      EventType = "aggregating"
	EventWaitingImageText EventType = "waiting_image_text"
	EventProcessingStart  EventType = "processing_started"
	EventRetrying         EventType = "retrying"
	EventSent             EventType = "sent"
	EventFailed           EventType = "failed"
)

// Event is one observer notification.
type Event struct {
	Type      EventType `json:"type"`
	SenderID  string    `json:"sender_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

const subscriberBuffer = 64

// Hub is an in-memory publish/subscribe hub with buffered subscribers.
// Events are dropped, not queued, when a subscriber's buffer is full.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	logger  *slog.Logger
	dropped int
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		logger: log.With(slog.String("component", "notify")),
	}
}

// Subscribe registers an observer. The returned cancel func must be
// called to release the subscription; the channel is closed by it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Publish sends the event to every subscriber without blocking.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub <- event:
		default:
			h.dropped++
			h.logger.Debug("observer buffer full, event dropped",
				slog.String("type", string(event.Type)),
				slog.Int("total_dropped", h.dropped))
		}
	}
}

// Dropped returns the number of events discarded due to full buffers.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
