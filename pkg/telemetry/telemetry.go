package telemetry

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventShellStarted    EventType = "shell.started"
	EventShellStopped    EventType = "shell.stopped"
	EventLoopStarted     EventType = "loop.started"
	EventLoopStopped     EventType = "loop.stopped"
	EventMessageQueued   EventType = "queue.pushed"
	EventMessageHandled  EventType = "loop.message_handled"
	EventMessageFailed   EventType = "loop.message_failed"
	EventMessageUnknown  EventType = "loop.message_unknown"
	EventInputSubmitted  EventType = "input.submitted"
	EventInputKeypress   EventType = "input.keypress"
	EventModeChanged     EventType = "mode.changed"
	EventCancelRequested EventType = "cancel.requested"
	EventProgressStarted EventType = "progress.started"
	EventProgressUpdated EventType = "progress.updated"
	EventProgressEnded   EventType = "progress.ended"
	EventStreamStarted   EventType = "stream.started"
	EventStreamChunk     EventType = "stream.chunk"
	EventStreamComplete  EventType = "stream.complete"
	EventStreamCancelled EventType = "stream.cancelled"
	EventRemoteAttached  EventType = "remote.attached"
	EventRemoteDetached  EventType = "remote.detached"
	EventRemoteInjected  EventType = "remote.injected"
)

// Event describes shell telemetry that UIs and IPC clients can consume.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Drop if subscriber can't keep up; prevents blocking the loop.
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Event, 64)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
