package service

import (
	"sync"

	"github.com/gorilla/websocket"

	"traingrid/internal/scheduler"
	"traingrid/pkg/logger"
)

// EventHub fans scheduler events out to websocket subscribers. It
// implements scheduler.Notifier; Notify never blocks the scheduler, slow
// subscribers are disconnected instead of buffered without bound.
type EventHub struct {
	mu      sync.Mutex
	subs    map[*websocket.Conn]chan scheduler.Event
	closed  bool
	history []scheduler.Event
}

const (
	subscriberBuffer = 64
	historyLimit     = 256
)

// NewEventHub creates the hub
func NewEventHub() *EventHub {
	return &EventHub{
		subs: make(map[*websocket.Conn]chan scheduler.Event),
	}
}

// Notify implements scheduler.Notifier
func (h *EventHub) Notify(event scheduler.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.history = append(h.history, event)
	if len(h.history) > historyLimit {
		h.history = h.history[len(h.history)-historyLimit:]
	}

	for conn, ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up; drop it
			delete(h.subs, conn)
			close(ch)
			logger.Warnf("event subscriber dropped, remote: %s", conn.RemoteAddr())
		}
	}
}

// Subscribe attaches a websocket connection and starts its writer. The
// caller keeps ownership of reads; write errors detach the subscriber.
func (h *EventHub) Subscribe(conn *websocket.Conn) {
	ch := make(chan scheduler.Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[conn] = ch
	h.mu.Unlock()

	go func() {
		for event := range ch {
			if err := conn.WriteJSON(event); err != nil {
				h.Unsubscribe(conn)
				return
			}
		}
	}()
}

// Unsubscribe detaches a connection and closes it
func (h *EventHub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.subs[conn]; ok {
		delete(h.subs, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// Recent returns a copy of the retained event history, newest last
func (h *EventHub) Recent() []scheduler.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]scheduler.Event(nil), h.history...)
}

// SubscriberCount reports the number of attached connections
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches all subscribers
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, ch := range h.subs {
		delete(h.subs, conn)
		close(ch)
		conn.Close()
	}
}
