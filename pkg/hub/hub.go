package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-framepace/pkg/metrics"
)

// Hub maintains the set of active subscribers and broadcasts messages to them
type Hub struct {
	// Name for logging and the viewers gauge
	name   string
	logger *slog.Logger

	// Registered subscribers
	subs map[*Subscription]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests; Run closes the subscription's ready channel once added
	register chan *Subscription

	// Unregister requests
	unregister chan *Subscription

	// Closed when Run returns
	done chan struct{}

	// Mutex for subscriber count (read-only access from outside)
	mu sync.RWMutex

	running bool
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		subs:       make(map[*Subscription]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is done.
// All subscriptions are closed when it returns.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		for sub := range h.subs {
			delete(h.subs, sub)
			close(sub.send)
		}
		h.running = false
		h.mu.Unlock()
		close(h.done)
		metrics.SetViewers(h.name, 0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subs[sub] = true
			count := len(h.subs)
			h.mu.Unlock()
			close(sub.ready)
			metrics.SetViewers(h.name, count)
			h.logger.Debug("viewer connected", "total", count)

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.send)
			}
			count := len(h.subs)
			h.mu.Unlock()
			metrics.SetViewers(h.name, count)
			h.logger.Debug("viewer disconnected", "remaining", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for sub := range h.subs {
				select {
				case sub.send <- message:
				default:
					// Subscriber is too slow: drop it
					close(sub.send)
					delete(h.subs, sub)
					h.logger.Warn("dropped slow viewer")
				}
			}
			count := len(h.subs)
			h.mu.Unlock()
			metrics.SetViewers(h.name, count)
		}
	}
}

// Subscribe registers a new subscriber with the given queue size and
// returns once the hub counts it. If the hub has stopped the returned
// subscription is already closed.
func (h *Hub) Subscribe(buffer int) *Subscription {
	sub := &Subscription{
		hub:   h,
		send:  make(chan Message, buffer),
		ready: make(chan struct{}),
	}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.send)
		return sub
	}
	select {
	case <-sub.ready:
	case <-h.done:
	}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Broadcast sends a message to all subscribers without blocking
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data (e.g., camera frames)
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Subscription receives broadcast messages until closed.
type Subscription struct {
	hub   *Hub
	send  chan Message
	ready chan struct{}
	once  sync.Once
}

// C returns the message channel. It is closed when the subscription ends,
// the subscriber falls behind, or the hub stops.
func (s *Subscription) C() <-chan Message {
	return s.send
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}
