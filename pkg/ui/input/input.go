// Package input turns terminal key events into submitted lines. A
// Manager owns the line buffer, input history, and the callback sets
// that fire on submission and on control keys. Callbacks run in
// registration order and a panicking callback never suppresses the
// ones registered after it.
package input

import (
	"strings"
	"sync"

	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// Manager is the line editor behind the prompt. All methods are safe
// for concurrent use; callbacks are invoked outside the internal lock
// so they may call back into the manager.
type Manager struct {
	mu sync.Mutex

	enabled bool
	buffer  []rune
	cursor  int

	history *History

	onInput    []func(string)
	onKeypress []func(terminal.KeyEvent)
	onShiftTab []func()
	onEscape   []func()
	onCtrlC    []func()
	onCtrlD    []func()

	panicHandler func(recovered any)
}

// NewManager creates an enabled manager with default history bounds.
func NewManager() *Manager {
	return &Manager{
		enabled: true,
		history: NewHistory(0),
	}
}

// NewManagerWithHistory creates a manager with a custom history limit.
func NewManagerWithHistory(limit int) *Manager {
	return &Manager{
		enabled: true,
		history: NewHistory(limit),
	}
}

// OnInput registers a callback for submitted lines.
func (m *Manager) OnInput(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInput = append(m.onInput, fn)
}

// OnKeypress registers an observer for every key event the manager
// handles. Observers run before the key is interpreted.
func (m *Manager) OnKeypress(fn func(ev terminal.KeyEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onKeypress = append(m.onKeypress, fn)
}

// OnShiftTab registers a callback for Shift+Tab.
func (m *Manager) OnShiftTab(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShiftTab = append(m.onShiftTab, fn)
}

// OnEscape registers a callback for the Escape key.
func (m *Manager) OnEscape(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEscape = append(m.onEscape, fn)
}

// OnCtrlC registers a callback for Ctrl+C.
func (m *Manager) OnCtrlC(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCtrlC = append(m.onCtrlC, fn)
}

// OnCtrlD registers a callback for Ctrl+D.
func (m *Manager) OnCtrlD(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCtrlD = append(m.onCtrlD, fn)
}

// SetPanicHandler installs a handler for panics recovered from
// callbacks. Without one, recovered panics are dropped.
func (m *Manager) SetPanicHandler(fn func(recovered any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicHandler = fn
}

// Enable resumes event handling.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Disable stops event handling. The line buffer is kept, so a disabled
// manager resumes where it left off.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enabled reports whether the manager is handling events.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Line returns the current line buffer.
func (m *Manager) Line() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.buffer)
}

// Cursor returns the cursor position within the line buffer, in runes.
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SetLine replaces the line buffer, placing the cursor at the end.
func (m *Manager) SetLine(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = []rune(text)
	m.cursor = len(m.buffer)
}

// HistoryEntries returns a copy of the submission history, oldest
// first.
func (m *Manager) HistoryEntries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Entries()
}

// SeedHistory preloads recall history, oldest first, without firing
// input callbacks. Used to restore history from a previous session.
func (m *Manager) SeedHistory(lines []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range lines {
		m.history.Add(line)
	}
}

// Inject submits text as if the user had typed it and pressed Enter.
// The in-progress line buffer is left untouched.
func (m *Manager) Inject(text string) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.history.Add(text)
	callbacks := append([]func(string){}, m.onInput...)
	handler := m.panicHandler
	m.mu.Unlock()

	for _, fn := range callbacks {
		invokeInput(handler, fn, text)
	}
}

// HandleEvent processes one terminal event. Events are dropped while
// the manager is disabled.
func (m *Manager) HandleEvent(ev terminal.Event) {
	switch tev := ev.(type) {
	case terminal.KeyEvent:
		m.handleKey(tev)
	case terminal.PasteEvent:
		m.handlePaste(tev)
	}
}

func (m *Manager) handleKey(ev terminal.KeyEvent) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}

	observers := append([]func(terminal.KeyEvent){}, m.onKeypress...)
	handler := m.panicHandler

	var fire []func()
	var submitted string
	var submit bool
	var inputCallbacks []func(string)

	switch ev.Key {
	case terminal.KeyRune:
		m.insertLocked([]rune{ev.Rune})
	case terminal.KeyEnter:
		submitted = string(m.buffer)
		submit = true
		m.history.Add(submitted)
		m.buffer = nil
		m.cursor = 0
		inputCallbacks = append([]func(string){}, m.onInput...)
	case terminal.KeyBackspace:
		if m.cursor > 0 {
			m.buffer = append(m.buffer[:m.cursor-1], m.buffer[m.cursor:]...)
			m.cursor--
		}
	case terminal.KeyDelete:
		if m.cursor < len(m.buffer) {
			m.buffer = append(m.buffer[:m.cursor], m.buffer[m.cursor+1:]...)
		}
	case terminal.KeyLeft:
		if m.cursor > 0 {
			m.cursor--
		}
	case terminal.KeyRight:
		if m.cursor < len(m.buffer) {
			m.cursor++
		}
	case terminal.KeyHome:
		m.cursor = 0
	case terminal.KeyEnd:
		m.cursor = len(m.buffer)
	case terminal.KeyUp:
		m.historyUpLocked()
	case terminal.KeyDown:
		m.historyDownLocked()
	case terminal.KeyCtrlU:
		m.buffer = nil
		m.cursor = 0
	case terminal.KeyBacktab:
		fire = append([]func(){}, m.onShiftTab...)
	case terminal.KeyEscape:
		fire = append([]func(){}, m.onEscape...)
	case terminal.KeyCtrlC:
		fire = append([]func(){}, m.onCtrlC...)
	case terminal.KeyCtrlD:
		fire = append([]func(){}, m.onCtrlD...)
	}
	m.mu.Unlock()

	for _, fn := range observers {
		invokeKey(handler, fn, ev)
	}
	for _, fn := range fire {
		invoke(handler, fn)
	}
	if submit {
		for _, fn := range inputCallbacks {
			invokeInput(handler, fn, submitted)
		}
	}
}

func (m *Manager) handlePaste(ev terminal.PasteEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	// The editor is single-line; embedded newlines become spaces.
	text := strings.ReplaceAll(ev.Text, "\n", " ")
	m.insertLocked([]rune(text))
}

func (m *Manager) insertLocked(rs []rune) {
	if len(rs) == 0 {
		return
	}
	out := make([]rune, 0, len(m.buffer)+len(rs))
	out = append(out, m.buffer[:m.cursor]...)
	out = append(out, rs...)
	out = append(out, m.buffer[m.cursor:]...)
	m.buffer = out
	m.cursor += len(rs)
	// Editing commits the browsed entry as the working line.
	m.history.ResetCursor()
}

func (m *Manager) historyUpLocked() {
	if text, ok := m.history.Up(); ok {
		m.buffer = []rune(text)
		m.cursor = len(m.buffer)
	}
}

// historyDownLocked steps toward newer entries; moving past the newest
// clears the line.
func (m *Manager) historyDownLocked() {
	if !m.history.Browsing() {
		return
	}
	if text, ok := m.history.Down(); ok {
		m.buffer = []rune(text)
	} else {
		m.buffer = nil
	}
	m.cursor = len(m.buffer)
}

// invoke runs a callback, containing any panic.
func invoke(handler func(any), fn func()) {
	defer func() {
		if r := recover(); r != nil && handler != nil {
			handler(r)
		}
	}()
	fn()
}

func invokeKey(handler func(any), fn func(terminal.KeyEvent), ev terminal.KeyEvent) {
	invoke(handler, func() { fn(ev) })
}

func invokeInput(handler func(any), fn func(string), text string) {
	invoke(handler, func() { fn(text) })
}
