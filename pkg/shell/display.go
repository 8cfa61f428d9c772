package shell

import (
	"fmt"

	"github.com/odvcencio/tern/pkg/logging"
	"github.com/odvcencio/tern/pkg/ui/widgets"
)

// The coordination loop drives these from its consumer goroutine. Each
// entry point funnels through paint so a renderer bug degrades one
// frame instead of killing the session.

// BeginResponse clears the transcript area and opens the stream view.
// The advisory cancel flag resets here so each message starts
// unflagged.
func (s *Shell) BeginResponse() {
	s.cancelRequested.Store(false)
	s.paint("stream", func() {
		clearPane(s.streamPane)
		s.stream.Start()
	})
	s.flush()
}

// AppendResponse adds text to the open stream, opening one first when a
// result arrives outside a request cycle.
func (s *Shell) AppendResponse(text string) {
	s.paint("stream", func() {
		if s.stream.State() != widgets.StreamStreaming {
			clearPane(s.streamPane)
			s.stream.Start()
		}
		s.stream.AddChunk(text)
	})
	s.flush()
}

// EndResponse finalizes the open stream, firing completion callbacks.
func (s *Shell) EndResponse() {
	s.paint("stream", s.stream.Complete)
	s.flush()
}

// FailResponse marks the open stream failed with a reason.
func (s *Shell) FailResponse(reason string) {
	s.paint("stream", func() { s.stream.Fail(reason) })
	s.flush()
}

// CancelResponse abandons the open stream.
func (s *Shell) CancelResponse() {
	s.paint("stream", s.stream.Cancel)
	s.flush()
}

// ShowStatus displays a transient notice from the loop. Level maps onto
// the notice kinds; unknown levels render as info.
func (s *Shell) ShowStatus(level, text string) {
	s.DisplayMessage(text, level)
}

// Redraw repaints the whole frame from current widget state.
func (s *Shell) Redraw() {
	s.renderMu.Lock()
	s.term.Clear()
	s.renderMu.Unlock()
	s.paint("mode", s.modes.Refresh)
	s.paint("stream", s.stream.Refresh)
	s.paint("progress", s.progress.Refresh)
	s.paint("status", s.notices.Refresh)
	s.renderInfoLine()
	s.renderInput()
	s.flush()
}

// paint runs one widget call, containing panics so a rendering bug
// cannot take down the consumer goroutine.
func (s *Shell) paint(widget string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logError(logging.CategoryRender, "render_panic",
				fmt.Sprintf("%s renderer panicked: %v", widget, r),
				map[string]any{"widget": widget})
		}
	}()
	fn()
}

func (s *Shell) flush() {
	s.term.Flush()
}

func statusKind(level string) widgets.MessageKind {
	switch level {
	case "warning", "warn":
		return widgets.KindWarning
	case "error":
		return widgets.KindError
	case "success":
		return widgets.KindSuccess
	default:
		return widgets.KindInfo
	}
}
