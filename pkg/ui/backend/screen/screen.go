// Package screen provides the retained backend. The contract's
// cursor-relative writes are applied to a tcell cell grid and diffed to
// the terminal on Flush, which gives flicker-free full-screen
// rendering. All access is serialized through a single mutex.
package screen

import (
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/ui/backend"
	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// Backend implements backend.Terminal over a tcell screen.
type Backend struct {
	mu     sync.Mutex
	screen tcell.Screen

	curX, curY    int
	style         tcell.Style
	cursorVisible bool

	// Bracketed paste arrives as a start event, a run of rune keys,
	// then an end event; accumulate between the brackets.
	pasting  bool
	pasteBuf strings.Builder

	initialized bool
	destroyed   bool
}

// New creates a backend over a real terminal screen.
func New() (*Backend, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeInitialization, "failed to create screen")
	}
	return NewWithScreen(s), nil
}

// NewWithScreen creates a backend over the given screen. Tests pass a
// tcell simulation screen here.
func NewWithScreen(s tcell.Screen) *Backend {
	return &Backend{
		screen: s,
		style:  tcell.StyleDefault,
	}
}

// Init initializes the screen and enables bracketed paste.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if b.destroyed {
		return terrors.New(terrors.ErrCodeInitialization, "backend already destroyed")
	}
	if err := b.screen.Init(); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeInitialization, "failed to initialize screen")
	}
	b.screen.EnablePaste()
	b.screen.HideCursor()
	b.initialized = true
	return nil
}

// EnableMouse turns on mouse reporting. Mouse events are currently
// swallowed by the event converter, but capture keeps scroll wheels
// from scrolling the host terminal's buffer mid-session.
func (b *Backend) EnableMouse() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed || !b.initialized {
		return
	}
	b.screen.EnableMouse()
}

// Write draws text at the cursor, advancing it. Newlines move to the
// start of the next row; long runs wrap at the right edge.
func (b *Backend) Write(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}

	width, height := b.screen.Size()
	for _, r := range text {
		if r == '\n' {
			b.curX = 0
			b.curY++
			continue
		}
		if b.curY >= height {
			break
		}
		b.screen.SetContent(b.curX, b.curY, r, nil, b.style)
		b.curX += runewidth.RuneWidth(r)
		if b.curX >= width {
			b.curX = 0
			b.curY++
		}
	}
	b.syncCursorLocked()
}

// Clear erases the grid and homes the cursor.
func (b *Backend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.screen.Clear()
	b.curX, b.curY = 0, 0
	b.syncCursorLocked()
}

// ClearLine blanks the cursor's row and returns to column zero.
func (b *Backend) ClearLine() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	width, _ := b.screen.Size()
	for x := 0; x < width; x++ {
		b.screen.SetContent(x, b.curY, ' ', nil, tcell.StyleDefault)
	}
	b.curX = 0
	b.syncCursorLocked()
}

// MoveCursor positions the cursor, clamped to the screen.
func (b *Backend) MoveCursor(x, y int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	width, height := b.screen.Size()
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if width > 0 && x >= width {
		x = width - 1
	}
	if height > 0 && y >= height {
		y = height - 1
	}
	b.curX, b.curY = x, y
	b.syncCursorLocked()
}

// Size returns the screen dimensions.
func (b *Backend) Size() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.screen.Size()
}

// SetColor sets the foreground color for subsequent writes.
func (b *Backend) SetColor(c backend.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.style = b.style.Foreground(convertColor(c))
}

// ResetFormatting returns to the default style.
func (b *Backend) ResetFormatting() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.style = tcell.StyleDefault
}

// HideCursor hides the hardware cursor.
func (b *Backend) HideCursor() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.cursorVisible = false
	b.screen.HideCursor()
}

// ShowCursor shows the hardware cursor at the tracked position.
func (b *Backend) ShowCursor() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.cursorVisible = true
	b.screen.ShowCursor(b.curX, b.curY)
}

// Flush pushes pending cell changes to the terminal.
func (b *Backend) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.screen.Show()
}

// Destroy restores the terminal. Safe to call more than once.
func (b *Backend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	if b.initialized {
		b.screen.Fini()
	}
}

// PollEvent blocks for the next input event, returning nil once the
// screen is finalized.
func (b *Backend) PollEvent() terminal.Event {
	for {
		ev := b.screen.PollEvent()
		if ev == nil {
			return nil
		}
		converted := b.convertEvent(ev)
		if converted != nil {
			return converted
		}
	}
}

// PostEvent injects an event into the screen's queue.
func (b *Backend) PostEvent(ev terminal.Event) error {
	tev := reverseConvertEvent(ev)
	if tev == nil {
		return terrors.New(terrors.ErrCodeInvalidInput, "unsupported event type").
			WithContext("event_type", terminal.EventName(ev))
	}
	if err := b.screen.PostEvent(tev); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeBackendClosed, "failed to post event")
	}
	return nil
}

// Screen exposes the underlying tcell screen for test capture.
func (b *Backend) Screen() tcell.Screen {
	return b.screen
}

func (b *Backend) syncCursorLocked() {
	if b.cursorVisible {
		b.screen.ShowCursor(b.curX, b.curY)
	}
}

// convertEvent translates a tcell event, folding bracketed paste runs
// into a single PasteEvent.
func (b *Backend) convertEvent(ev tcell.Event) terminal.Event {
	switch tev := ev.(type) {
	case *tcell.EventResize:
		w, h := tev.Size()
		return terminal.ResizeEvent{Width: w, Height: h}

	case *tcell.EventPaste:
		b.mu.Lock()
		defer b.mu.Unlock()
		if tev.Start() {
			b.pasting = true
			b.pasteBuf.Reset()
			return nil
		}
		b.pasting = false
		text := b.pasteBuf.String()
		b.pasteBuf.Reset()
		if text == "" {
			return nil
		}
		return terminal.PasteEvent{Text: text}

	case *tcell.EventKey:
		b.mu.Lock()
		pasting := b.pasting
		if pasting {
			if tev.Key() == tcell.KeyRune {
				b.pasteBuf.WriteRune(tev.Rune())
			} else if tev.Key() == tcell.KeyEnter || tev.Key() == tcell.KeyCR {
				b.pasteBuf.WriteRune('\n')
			}
		}
		b.mu.Unlock()
		if pasting {
			return nil
		}
		return convertKey(tev)
	}
	return nil
}

func convertKey(ev *tcell.EventKey) terminal.Event {
	key := terminal.KeyEvent{
		Alt:   ev.Modifiers()&tcell.ModAlt != 0,
		Ctrl:  ev.Modifiers()&tcell.ModCtrl != 0,
		Shift: ev.Modifiers()&tcell.ModShift != 0,
	}

	switch ev.Key() {
	case tcell.KeyRune:
		key.Key = terminal.KeyRune
		key.Rune = ev.Rune()
	case tcell.KeyEnter:
		key.Key = terminal.KeyEnter
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		key.Key = terminal.KeyBackspace
	case tcell.KeyTab:
		key.Key = terminal.KeyTab
	case tcell.KeyBacktab:
		key.Key = terminal.KeyBacktab
		key.Shift = true
	case tcell.KeyEscape:
		key.Key = terminal.KeyEscape
	case tcell.KeyUp:
		key.Key = terminal.KeyUp
	case tcell.KeyDown:
		key.Key = terminal.KeyDown
	case tcell.KeyLeft:
		key.Key = terminal.KeyLeft
	case tcell.KeyRight:
		key.Key = terminal.KeyRight
	case tcell.KeyHome:
		key.Key = terminal.KeyHome
	case tcell.KeyEnd:
		key.Key = terminal.KeyEnd
	case tcell.KeyPgUp:
		key.Key = terminal.KeyPageUp
	case tcell.KeyPgDn:
		key.Key = terminal.KeyPageDown
	case tcell.KeyDelete:
		key.Key = terminal.KeyDelete
	case tcell.KeyCtrlC:
		key.Key = terminal.KeyCtrlC
		key.Ctrl = true
	case tcell.KeyCtrlD:
		key.Key = terminal.KeyCtrlD
		key.Ctrl = true
	case tcell.KeyCtrlL:
		key.Key = terminal.KeyCtrlL
		key.Ctrl = true
	case tcell.KeyCtrlU:
		key.Key = terminal.KeyCtrlU
		key.Ctrl = true
	default:
		return nil
	}
	return key
}

// reverseConvertEvent builds the tcell event for an injected one.
func reverseConvertEvent(ev terminal.Event) tcell.Event {
	switch tev := ev.(type) {
	case terminal.ResizeEvent:
		return tcell.NewEventResize(tev.Width, tev.Height)
	case terminal.KeyEvent:
		var mods tcell.ModMask
		if tev.Alt {
			mods |= tcell.ModAlt
		}
		if tev.Ctrl {
			mods |= tcell.ModCtrl
		}
		if tev.Shift {
			mods |= tcell.ModShift
		}
		switch tev.Key {
		case terminal.KeyRune:
			return tcell.NewEventKey(tcell.KeyRune, tev.Rune, mods)
		case terminal.KeyEnter:
			return tcell.NewEventKey(tcell.KeyEnter, 0, mods)
		case terminal.KeyBackspace:
			return tcell.NewEventKey(tcell.KeyBackspace2, 0, mods)
		case terminal.KeyTab:
			return tcell.NewEventKey(tcell.KeyTab, 0, mods)
		case terminal.KeyBacktab:
			return tcell.NewEventKey(tcell.KeyBacktab, 0, mods|tcell.ModShift)
		case terminal.KeyEscape:
			return tcell.NewEventKey(tcell.KeyEscape, 0, mods)
		case terminal.KeyUp:
			return tcell.NewEventKey(tcell.KeyUp, 0, mods)
		case terminal.KeyDown:
			return tcell.NewEventKey(tcell.KeyDown, 0, mods)
		case terminal.KeyLeft:
			return tcell.NewEventKey(tcell.KeyLeft, 0, mods)
		case terminal.KeyRight:
			return tcell.NewEventKey(tcell.KeyRight, 0, mods)
		case terminal.KeyHome:
			return tcell.NewEventKey(tcell.KeyHome, 0, mods)
		case terminal.KeyEnd:
			return tcell.NewEventKey(tcell.KeyEnd, 0, mods)
		case terminal.KeyPageUp:
			return tcell.NewEventKey(tcell.KeyPgUp, 0, mods)
		case terminal.KeyPageDown:
			return tcell.NewEventKey(tcell.KeyPgDn, 0, mods)
		case terminal.KeyDelete:
			return tcell.NewEventKey(tcell.KeyDelete, 0, mods)
		case terminal.KeyCtrlC:
			return tcell.NewEventKey(tcell.KeyCtrlC, 0, mods|tcell.ModCtrl)
		case terminal.KeyCtrlD:
			return tcell.NewEventKey(tcell.KeyCtrlD, 0, mods|tcell.ModCtrl)
		case terminal.KeyCtrlL:
			return tcell.NewEventKey(tcell.KeyCtrlL, 0, mods|tcell.ModCtrl)
		case terminal.KeyCtrlU:
			return tcell.NewEventKey(tcell.KeyCtrlU, 0, mods|tcell.ModCtrl)
		}
	}
	return nil
}

// convertColor maps a palette or RGB color to tcell's space.
func convertColor(c backend.Color) tcell.Color {
	if c == backend.ColorDefault {
		return tcell.ColorDefault
	}
	if c.IsRGB() {
		r, g, bl := c.RGB()
		return tcell.NewRGBColor(int32(r), int32(g), int32(bl))
	}
	return tcell.PaletteColor(int(c))
}

// Ensure Backend implements backend.Terminal
var _ backend.Terminal = (*Backend)(nil)
