// Package sim provides an in-memory backend for tests. It wraps the
// retained backend around a tcell simulation screen, adding input
// injection and screen capture so tests can drive a full shell without
// a terminal.
package sim

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/odvcencio/tern/pkg/ui/backend/screen"
	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// Backend is a simulation-screen backend.
type Backend struct {
	*screen.Backend
	sim tcell.SimulationScreen
}

// New creates a simulation backend with the default 80x24 size.
func New() *Backend {
	s := tcell.NewSimulationScreen("")
	return &Backend{
		Backend: screen.NewWithScreen(s),
		sim:     s,
	}
}

// Resize changes the simulated terminal size and delivers the resize
// event.
func (b *Backend) Resize(width, height int) {
	b.sim.SetSize(width, height)
	b.sim.PostEventWait(tcell.NewEventResize(width, height))
}

// InjectKey delivers a key press to the input stream.
func (b *Backend) InjectKey(key terminal.Key, r rune) {
	switch key {
	case terminal.KeyRune:
		b.sim.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	case terminal.KeyEnter:
		b.sim.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	case terminal.KeyBackspace:
		b.sim.InjectKey(tcell.KeyBackspace2, 0, tcell.ModNone)
	case terminal.KeyTab:
		b.sim.InjectKey(tcell.KeyTab, 0, tcell.ModNone)
	case terminal.KeyBacktab:
		b.sim.InjectKey(tcell.KeyBacktab, 0, tcell.ModShift)
	case terminal.KeyEscape:
		b.sim.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	case terminal.KeyUp:
		b.sim.InjectKey(tcell.KeyUp, 0, tcell.ModNone)
	case terminal.KeyDown:
		b.sim.InjectKey(tcell.KeyDown, 0, tcell.ModNone)
	case terminal.KeyLeft:
		b.sim.InjectKey(tcell.KeyLeft, 0, tcell.ModNone)
	case terminal.KeyRight:
		b.sim.InjectKey(tcell.KeyRight, 0, tcell.ModNone)
	case terminal.KeyHome:
		b.sim.InjectKey(tcell.KeyHome, 0, tcell.ModNone)
	case terminal.KeyEnd:
		b.sim.InjectKey(tcell.KeyEnd, 0, tcell.ModNone)
	case terminal.KeyDelete:
		b.sim.InjectKey(tcell.KeyDelete, 0, tcell.ModNone)
	case terminal.KeyCtrlC:
		b.sim.InjectKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	case terminal.KeyCtrlD:
		b.sim.InjectKey(tcell.KeyCtrlD, 0, tcell.ModCtrl)
	case terminal.KeyCtrlL:
		b.sim.InjectKey(tcell.KeyCtrlL, 0, tcell.ModCtrl)
	case terminal.KeyCtrlU:
		b.sim.InjectKey(tcell.KeyCtrlU, 0, tcell.ModCtrl)
	}
}

// InjectRune delivers a single character.
func (b *Backend) InjectRune(r rune) {
	b.InjectKey(terminal.KeyRune, r)
}

// InjectString delivers each character of s followed by nothing; use
// InjectLine to submit.
func (b *Backend) InjectString(s string) {
	for _, r := range s {
		b.InjectRune(r)
	}
}

// InjectLine delivers s followed by Enter.
func (b *Backend) InjectLine(s string) {
	b.InjectString(s)
	b.InjectKey(terminal.KeyEnter, 0)
}

// Capture returns the visible screen as text, one line per row with
// trailing blanks trimmed.
func (b *Backend) Capture() string {
	cells, width, height := b.sim.GetContents()
	var sb strings.Builder
	for y := 0; y < height; y++ {
		var line strings.Builder
		for x := 0; x < width; x++ {
			cell := cells[y*width+x]
			if len(cell.Runes) == 0 {
				line.WriteRune(' ')
				continue
			}
			line.WriteRune(cell.Runes[0])
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		if y < height-1 {
			sb.WriteRune('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// CaptureCell returns the rune at (x, y).
func (b *Backend) CaptureCell(x, y int) rune {
	cells, width, height := b.sim.GetContents()
	if x < 0 || y < 0 || x >= width || y >= height {
		return 0
	}
	cell := cells[y*width+x]
	if len(cell.Runes) == 0 {
		return ' '
	}
	return cell.Runes[0]
}

// CaptureRegion returns the text in a rectangle.
func (b *Backend) CaptureRegion(x, y, width, height int) string {
	var sb strings.Builder
	for row := 0; row < height; row++ {
		var line strings.Builder
		for col := 0; col < width; col++ {
			r := b.CaptureCell(x+col, y+row)
			if r == 0 {
				continue
			}
			line.WriteRune(r)
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		if row < height-1 {
			sb.WriteRune('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ContainsText reports whether the visible screen contains s.
func (b *Backend) ContainsText(s string) bool {
	return strings.Contains(b.Capture(), s)
}

// FindText returns the position of the first occurrence of s, or
// (-1, -1) when absent.
func (b *Backend) FindText(s string) (int, int) {
	_, width, height := b.sim.GetContents()
	for y := 0; y < height; y++ {
		line := b.CaptureRegion(0, y, width, 1)
		if idx := strings.Index(line, s); idx >= 0 {
			return idx, y
		}
	}
	return -1, -1
}

// DiffFrames returns a unified diff between two captures, for test
// failure messages.
func DiffFrames(before, after string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
