// Package ansi provides the raw escape-code backend. Every contract
// primitive is translated into an ANSI sequence written directly to the
// output stream; nothing is retained. Raw input mode is tracked
// explicitly so Destroy can always restore the terminal it found.
package ansi

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/ui/backend"
	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// ANSI escape sequences.
const (
	escClearScreen  = "\x1b[2J"
	escClearLine    = "\x1b[2K"
	escCursorHome   = "\x1b[H"
	escCursorHide   = "\x1b[?25l"
	escCursorShow   = "\x1b[?25h"
	escReset        = "\x1b[0m"
	escPasteEnable  = "\x1b[?2004h"
	escPasteDisable = "\x1b[?2004l"
)

// cursorTo returns the sequence to move the cursor to (x, y).
// Coordinates are 0-indexed, but ANSI uses 1-indexed.
func cursorTo(x, y int) string {
	return fmt.Sprintf("\x1b[%d;%dH", y+1, x+1)
}

// Backend implements backend.Terminal over a byte stream.
type Backend struct {
	mu sync.Mutex

	in  io.Reader
	out *bufio.Writer

	// Raw-mode bookkeeping. rawMode flips on in Init and off in
	// Destroy; savedState restores whatever the terminal was before.
	inFd       int
	rawMode    bool
	savedState *term.State

	profile termenv.Profile

	width  int
	height int

	events chan terminal.Event
	quit   chan struct{}

	initialized bool
	destroyed   bool
}

// New creates a backend over stdin/stdout with color support detected
// from the environment.
func New() *Backend {
	return &Backend{
		in:      os.Stdin,
		out:     bufio.NewWriter(os.Stdout),
		inFd:    int(os.Stdin.Fd()),
		profile: termenv.ColorProfile(),
		width:   80,
		height:  24,
		events:  make(chan terminal.Event, 64),
		quit:    make(chan struct{}),
	}
}

// NewWithIO creates a backend over arbitrary streams. Raw mode is only
// entered for real terminals, so this is the constructor tests use.
// Color output is forced on so written sequences are deterministic.
func NewWithIO(in io.Reader, out io.Writer) *Backend {
	return &Backend{
		in:      in,
		out:     bufio.NewWriter(out),
		inFd:    -1,
		profile: termenv.TrueColor,
		width:   80,
		height:  24,
		events:  make(chan terminal.Event, 64),
		quit:    make(chan struct{}),
	}
}

// Init enters raw mode when the input is a real terminal and starts the
// input reader.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if b.destroyed {
		return terrors.New(terrors.ErrCodeInitialization, "backend already destroyed")
	}

	if f, ok := b.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return terrors.Wrap(err, terrors.ErrCodeInitialization, "failed to enter raw mode")
		}
		b.inFd = int(f.Fd())
		b.savedState = state
		b.rawMode = true
	}

	b.out.WriteString(escPasteEnable)
	b.out.Flush()

	go b.readLoop()
	if b.rawMode {
		go b.watchResize()
	}

	b.initialized = true
	return nil
}

// RawMode reports whether the backend currently holds the terminal in
// raw mode.
func (b *Backend) RawMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rawMode
}

// Write writes text at the cursor. Under raw mode the terminal no longer
// translates newlines, so they are expanded to CRLF here.
func (b *Backend) Write(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	if b.rawMode {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	b.out.WriteString(text)
}

// Clear erases the screen and homes the cursor.
func (b *Backend) Clear() {
	b.emit(escClearScreen + escCursorHome)
}

// ClearLine erases the current row and returns to column zero.
func (b *Backend) ClearLine() {
	b.emit("\r" + escClearLine)
}

// MoveCursor positions the cursor.
func (b *Backend) MoveCursor(x, y int) {
	b.emit(cursorTo(x, y))
}

// Size returns the terminal dimensions, falling back to the configured
// defaults when the output is not a terminal.
func (b *Backend) Size() (int, int) {
	if f, ok := b.writerFile(); ok {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w, h
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// SetSize overrides the fallback dimensions used when the output stream
// is not a terminal.
func (b *Backend) SetSize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width = width
	b.height = height
}

// SetColor sets the foreground color via SGR, degrading to no-op when
// the environment reports no color support.
func (b *Backend) SetColor(c backend.Color) {
	if b.profile == termenv.Ascii {
		return
	}
	b.emit(sgrForeground(c))
}

// ResetFormatting clears color and attributes.
func (b *Backend) ResetFormatting() {
	b.emit(escReset)
}

// HideCursor hides the cursor.
func (b *Backend) HideCursor() {
	b.emit(escCursorHide)
}

// ShowCursor shows the cursor.
func (b *Backend) ShowCursor() {
	b.emit(escCursorShow)
}

// Flush writes buffered output to the stream.
func (b *Backend) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.out.Flush()
}

// Destroy restores the terminal. Idempotent: the second and later calls
// are no-ops, so racing shutdown paths are harmless.
func (b *Backend) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true

	b.out.WriteString(escPasteDisable)
	b.out.WriteString(escCursorShow)
	b.out.WriteString(escReset)
	b.out.Flush()

	if b.rawMode && b.savedState != nil {
		_ = term.Restore(b.inFd, b.savedState)
		b.rawMode = false
	}
	b.mu.Unlock()

	close(b.quit)
}

// PollEvent blocks until an input event arrives or the backend is
// destroyed.
func (b *Backend) PollEvent() terminal.Event {
	select {
	case ev, ok := <-b.events:
		if !ok {
			return nil
		}
		return ev
	case <-b.quit:
		return nil
	}
}

// PostEvent injects an event into the input queue.
func (b *Backend) PostEvent(ev terminal.Event) error {
	select {
	case b.events <- ev:
		return nil
	case <-b.quit:
		return terrors.New(terrors.ErrCodeBackendClosed, "backend destroyed")
	}
}

func (b *Backend) emit(seq string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.out.WriteString(seq)
}

func (b *Backend) writerFile() (*os.File, bool) {
	// The bufio writer wraps the original; keep a tty probe via stdin
	// since both sides share the terminal.
	if b.inFd >= 0 && term.IsTerminal(b.inFd) {
		return os.Stdout, true
	}
	return nil, false
}

// sgrForeground maps a color to its SGR sequence.
func sgrForeground(c backend.Color) string {
	switch {
	case c == backend.ColorDefault:
		return "\x1b[39m"
	case c.IsRGB():
		r, g, bl := c.RGB()
		return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", r, g, bl)
	case c < 8:
		return fmt.Sprintf("\x1b[%dm", 30+int(c))
	case c < 16:
		return fmt.Sprintf("\x1b[%dm", 90+int(c)-8)
	default:
		return fmt.Sprintf("\x1b[38;5;%dm", int(c))
	}
}

// watchResize posts a resize event whenever the host signals a window
// size change. Only runs when the backend holds a real terminal.
func (b *Backend) watchResize() {
	sigCh := make(chan os.Signal, 1)
	registerResizeSignal(sigCh)
	defer unregisterResizeSignal(sigCh)

	for {
		select {
		case <-b.quit:
			return
		case <-sigCh:
			w, h := b.Size()
			select {
			case b.events <- terminal.ResizeEvent{Width: w, Height: h}:
			case <-b.quit:
				return
			}
		}
	}
}

// readLoop parses the input stream into events until the stream ends or
// the backend is destroyed.
func (b *Backend) readLoop() {
	reader := bufio.NewReader(b.in)
	for {
		select {
		case <-b.quit:
			return
		default:
		}

		r, _, err := reader.ReadRune()
		if err != nil {
			return
		}

		var ev terminal.Event
		switch r {
		case 0x1b:
			ev = b.readEscape(reader)
		case '\r', '\n':
			ev = terminal.KeyEvent{Key: terminal.KeyEnter}
		case 0x7f, 0x08:
			ev = terminal.KeyEvent{Key: terminal.KeyBackspace}
		case '\t':
			ev = terminal.KeyEvent{Key: terminal.KeyTab}
		case 0x03:
			ev = terminal.KeyEvent{Key: terminal.KeyCtrlC, Ctrl: true}
		case 0x04:
			ev = terminal.KeyEvent{Key: terminal.KeyCtrlD, Ctrl: true}
		case 0x0c:
			ev = terminal.KeyEvent{Key: terminal.KeyCtrlL, Ctrl: true}
		case 0x15:
			ev = terminal.KeyEvent{Key: terminal.KeyCtrlU, Ctrl: true}
		default:
			if r >= 0x20 {
				ev = terminal.KeyEvent{Key: terminal.KeyRune, Rune: r}
			}
		}

		if ev == nil {
			continue
		}
		select {
		case b.events <- ev:
		case <-b.quit:
			return
		}
	}
}

// readEscape consumes the remainder of an escape sequence. A lone ESC
// with nothing buffered is delivered as the Escape key.
func (b *Backend) readEscape(reader *bufio.Reader) terminal.Event {
	if reader.Buffered() == 0 {
		return terminal.KeyEvent{Key: terminal.KeyEscape}
	}

	next, _, err := reader.ReadRune()
	if err != nil {
		return terminal.KeyEvent{Key: terminal.KeyEscape}
	}

	switch next {
	case '[':
		return b.readCSI(reader)
	case 'O':
		// SS3 sequences from application cursor mode.
		final, _, err := reader.ReadRune()
		if err != nil {
			return terminal.KeyEvent{Key: terminal.KeyEscape}
		}
		return csiFinalKey(final, "")
	default:
		// Alt+key arrives as ESC followed by the key.
		return terminal.KeyEvent{Key: terminal.KeyRune, Rune: next, Alt: true}
	}
}

// readCSI parses a CSI sequence: parameters then a final byte.
func (b *Backend) readCSI(reader *bufio.Reader) terminal.Event {
	var params strings.Builder
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			return nil
		}
		if r >= 0x40 && r <= 0x7e {
			if r == '~' && params.String() == "200" {
				return b.readBracketedPaste(reader)
			}
			return csiFinalKey(r, params.String())
		}
		params.WriteRune(r)
	}
}

// readBracketedPaste accumulates text until the paste-end sequence.
func (b *Backend) readBracketedPaste(reader *bufio.Reader) terminal.Event {
	var text strings.Builder
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			break
		}
		if r == 0x1b {
			// Expect [201~ to close the paste.
			var tail strings.Builder
			for {
				t, _, err := reader.ReadRune()
				if err != nil {
					break
				}
				tail.WriteRune(t)
				if t == '~' || tail.Len() > 8 {
					break
				}
			}
			if tail.String() == "[201~" {
				break
			}
			text.WriteRune(r)
			text.WriteString(tail.String())
			continue
		}
		text.WriteRune(r)
	}
	if text.Len() == 0 {
		return nil
	}
	return terminal.PasteEvent{Text: text.String()}
}

// csiFinalKey maps a CSI final byte (plus parameters) to a key event.
func csiFinalKey(final rune, params string) terminal.Event {
	switch final {
	case 'A':
		return terminal.KeyEvent{Key: terminal.KeyUp}
	case 'B':
		return terminal.KeyEvent{Key: terminal.KeyDown}
	case 'C':
		return terminal.KeyEvent{Key: terminal.KeyRight}
	case 'D':
		return terminal.KeyEvent{Key: terminal.KeyLeft}
	case 'H':
		return terminal.KeyEvent{Key: terminal.KeyHome}
	case 'F':
		return terminal.KeyEvent{Key: terminal.KeyEnd}
	case 'Z':
		return terminal.KeyEvent{Key: terminal.KeyBacktab, Shift: true}
	case '~':
		switch params {
		case "1", "7":
			return terminal.KeyEvent{Key: terminal.KeyHome}
		case "3":
			return terminal.KeyEvent{Key: terminal.KeyDelete}
		case "4", "8":
			return terminal.KeyEvent{Key: terminal.KeyEnd}
		case "5":
			return terminal.KeyEvent{Key: terminal.KeyPageUp}
		case "6":
			return terminal.KeyEvent{Key: terminal.KeyPageDown}
		}
	}
	return nil
}

// Ensure Backend implements backend.Terminal
var _ backend.Terminal = (*Backend)(nil)
