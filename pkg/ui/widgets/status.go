package widgets

import (
	"sync"

	"github.com/odvcencio/tern/pkg/ui/backend"
)

// MessageKind classifies a status line.
type MessageKind int

const (
	KindInfo MessageKind = iota
	KindWarning
	KindError
	KindSuccess
)

func (k MessageKind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindSuccess:
		return "success"
	default:
		return "unknown"
	}
}

func (k MessageKind) glyph() string {
	switch k {
	case KindInfo:
		return "•"
	case KindWarning:
		return "!"
	case KindError:
		return "✗"
	case KindSuccess:
		return "✓"
	default:
		return "•"
	}
}

func (k MessageKind) color() backend.Color {
	switch k {
	case KindInfo:
		return backend.ColorCyan
	case KindWarning:
		return backend.ColorYellow
	case KindError:
		return backend.ColorRed
	case KindSuccess:
		return backend.ColorGreen
	default:
		return backend.ColorDefault
	}
}

// StatusRenderer is a one-line strip showing the most recent message
// with a kind-colored glyph.
type StatusRenderer struct {
	mu     sync.Mutex
	target backend.Target

	text string
	kind MessageKind
}

// NewStatusRenderer creates an empty status strip.
func NewStatusRenderer(target backend.Target) *StatusRenderer {
	return &StatusRenderer{target: target}
}

// Display shows a message, replacing the previous one.
func (s *StatusRenderer) Display(text string, kind MessageKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.kind = kind
	s.renderLocked()
}

// Clear blanks the strip.
func (s *StatusRenderer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = ""
	if s.target != nil {
		s.target.MoveCursor(0, 0)
		s.target.ClearLine()
	}
}

// Current returns the displayed text and kind.
func (s *StatusRenderer) Current() (string, MessageKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.kind
}

// Refresh repaints the current notice, for use after a full-screen
// clear.
func (s *StatusRenderer) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return
	}
	if s.text == "" {
		s.target.MoveCursor(0, 0)
		s.target.ClearLine()
		return
	}
	s.renderLocked()
}

func (s *StatusRenderer) renderLocked() {
	if s.target == nil {
		return
	}
	s.target.MoveCursor(0, 0)
	s.target.ClearLine()
	s.target.SetColor(s.kind.color())
	s.target.Write(s.kind.glyph())
	s.target.ResetFormatting()
	s.target.Write(" " + s.text)
}
