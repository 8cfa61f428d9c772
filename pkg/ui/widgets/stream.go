package widgets

import (
	"strings"
	"sync"

	"github.com/odvcencio/tern/pkg/ui/backend"
)

// StreamState is the phase of the incremental stream view.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamStreaming
	StreamComplete
	StreamCancelled
	StreamError
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamStreaming:
		return "streaming"
	case StreamComplete:
		return "complete"
	case StreamCancelled:
		return "cancelled"
	case StreamError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamRenderer paints response text incrementally as chunks arrive.
// Chunks are accumulated by concatenation; boundaries carry no meaning,
// so a line split across chunks reassembles correctly. Completion and
// cancellation callbacks fire exactly once per stream.
type StreamRenderer struct {
	mu     sync.Mutex
	target backend.Target

	state StreamState
	buf   strings.Builder

	onComplete []func(full string)
	onCancel   []func()
}

// NewStreamRenderer creates an idle renderer painting into target.
func NewStreamRenderer(target backend.Target) *StreamRenderer {
	return &StreamRenderer{target: target}
}

// OnComplete registers a callback receiving the accumulated text when
// a stream completes.
func (s *StreamRenderer) OnComplete(fn func(full string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = append(s.onComplete, fn)
}

// OnCancel registers a callback fired when a stream is cancelled or
// fails.
func (s *StreamRenderer) OnCancel(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCancel = append(s.onCancel, fn)
}

// Start resets the buffer and begins a new stream.
func (s *StreamRenderer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.state = StreamStreaming
}

// AddChunk appends text and paints it. Chunks arriving outside an
// active stream are dropped.
func (s *StreamRenderer) AddChunk(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StreamStreaming {
		return
	}
	s.buf.WriteString(text)
	if s.target != nil {
		s.target.Write(text)
	}
}

// Complete freezes the buffer and delivers the accumulated text to
// completion callbacks, in registration order.
func (s *StreamRenderer) Complete() {
	s.mu.Lock()
	if s.state != StreamStreaming {
		s.mu.Unlock()
		return
	}
	s.state = StreamComplete
	full := s.buf.String()
	if s.target != nil {
		s.target.Write("\n")
	}
	callbacks := append([]func(string){}, s.onComplete...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(full)
	}
}

// Cancel ends the stream early, keeping whatever was already painted.
func (s *StreamRenderer) Cancel() {
	s.terminate(StreamCancelled, "[cancelled]")
}

// Fail ends the stream early with an explanatory message.
func (s *StreamRenderer) Fail(msg string) {
	if msg == "" {
		msg = "stream failed"
	}
	s.terminate(StreamError, "["+msg+"]")
}

func (s *StreamRenderer) terminate(state StreamState, note string) {
	s.mu.Lock()
	if s.state != StreamStreaming {
		s.mu.Unlock()
		return
	}
	s.state = state
	if s.target != nil {
		s.target.Write("\n")
		s.target.SetColor(backend.ColorYellow)
		s.target.Write(note)
		s.target.ResetFormatting()
		s.target.Write("\n")
	}
	callbacks := append([]func(){}, s.onCancel...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// State returns the current stream state.
func (s *StreamRenderer) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Content returns the accumulated text so far.
func (s *StreamRenderer) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Refresh repaints the accumulated content from the region origin, for
// use after a full-screen clear.
func (s *StreamRenderer) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return
	}
	s.target.MoveCursor(0, 0)
	s.target.Write(s.buf.String())
}
