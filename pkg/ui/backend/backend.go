// Package backend defines the terminal rendering contract shared by the
// raw escape-code backend and the retained screen backend. Widgets are
// written once against this contract; only the paint technology differs
// between implementations.
package backend

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// Terminal is the rendering contract implemented identically by every
// backend. Destroy is idempotent: both shutdown paths (explicit command
// and signal handler) may race to call it.
type Terminal interface {
	// Init acquires the terminal. Failure surfaces as an
	// INITIALIZATION error to the caller.
	Init() error

	// Write writes text at the cursor position, advancing it.
	// Newlines move to column zero of the next row.
	Write(text string)

	// Clear erases the screen and homes the cursor.
	Clear()

	// ClearLine erases the row the cursor is on and returns the cursor
	// to column zero.
	ClearLine()

	// MoveCursor positions the cursor. Coordinates are zero-indexed.
	MoveCursor(x, y int)

	// Size returns the current terminal dimensions.
	Size() (width, height int)

	// SetColor sets the foreground color for subsequent writes.
	SetColor(c Color)

	// ResetFormatting clears color and attributes.
	ResetFormatting()

	// HideCursor hides the terminal cursor.
	HideCursor()

	// ShowCursor shows the terminal cursor.
	ShowCursor()

	// Flush performs one batched repaint. Callers should issue all
	// mutations for a logical update before flushing once.
	Flush()

	// Destroy releases the terminal. Safe to call repeatedly and on a
	// never-initialized backend; never panics.
	Destroy()

	// PollEvent blocks until an input event is available. Returns nil
	// when the backend is shutting down.
	PollEvent() terminal.Event

	// PostEvent injects an event into the input queue.
	PostEvent(ev terminal.Event) error
}

// Target is the subset of Terminal that widgets render against. Handing
// a widget a Target instead of the full Terminal keeps lifecycle calls
// (Init, Destroy) out of reach of paint code.
type Target interface {
	Write(text string)
	ClearLine()
	MoveCursor(x, y int)
	Size() (width, height int)
	SetColor(c Color)
	ResetFormatting()
}

// SubRegion confines rendering to a rectangle of a parent Target. Each
// widget owns a disjoint region; writes outside it are clipped, so one
// widget cannot scribble over another.
type SubRegion struct {
	parent  Target
	offsetX int
	offsetY int
	width   int
	height  int
	curX    int
	curY    int
}

// NewSubRegion creates a sub-region of a Target.
func NewSubRegion(parent Target, x, y, w, h int) *SubRegion {
	return &SubRegion{
		parent:  parent,
		offsetX: x,
		offsetY: y,
		width:   w,
		height:  h,
	}
}

// Size returns the sub-region dimensions.
func (s *SubRegion) Size() (width, height int) {
	return s.width, s.height
}

// MoveCursor positions the cursor relative to the sub-region origin,
// clamped to its bounds.
func (s *SubRegion) MoveCursor(x, y int) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x > s.width {
		x = s.width
	}
	if y >= s.height {
		y = s.height - 1
	}
	s.curX = x
	s.curY = y
	s.parent.MoveCursor(s.offsetX+x, s.offsetY+y)
}

// Write writes text clipped to the remaining width of the current row.
// Newlines advance to the next row of the sub-region; rows past the
// bottom are dropped. Every segment repositions the parent cursor from
// the region's own cursor, so interleaved writes from sibling regions
// cannot displace output.
func (s *SubRegion) Write(text string) {
	for i, seg := range strings.Split(text, "\n") {
		if i > 0 {
			s.curY++
			s.curX = 0
			if s.curY >= s.height {
				return
			}
		}
		if s.curY >= s.height || seg == "" {
			continue
		}
		s.parent.MoveCursor(s.offsetX+s.curX, s.offsetY+s.curY)
		remaining := s.width - s.curX
		if remaining <= 0 {
			continue
		}
		clipped := runewidth.Truncate(seg, remaining, "")
		if clipped == "" {
			continue
		}
		s.parent.Write(clipped)
		s.curX += runewidth.StringWidth(clipped)
	}
}

// ClearLine blanks the current row of the sub-region only.
func (s *SubRegion) ClearLine() {
	if s.curY >= s.height {
		return
	}
	s.parent.MoveCursor(s.offsetX, s.offsetY+s.curY)
	s.parent.Write(strings.Repeat(" ", s.width))
	s.curX = 0
	s.parent.MoveCursor(s.offsetX, s.offsetY+s.curY)
}

// SetColor forwards to the parent.
func (s *SubRegion) SetColor(c Color) {
	s.parent.SetColor(c)
}

// ResetFormatting forwards to the parent.
func (s *SubRegion) ResetFormatting() {
	s.parent.ResetFormatting()
}

var _ Target = (*SubRegion)(nil)
