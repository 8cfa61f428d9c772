package widgets

import (
	"sync"

	"github.com/odvcencio/tern/pkg/ui/backend"
)

// Mode is the input mode of the shell.
type Mode int

const (
	ModeInteractive Mode = iota
	ModeCommand
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeCommand:
		return "command"
	case ModeStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Label returns the display label for the mode.
func (m Mode) Label() string {
	switch m {
	case ModeInteractive:
		return "INTERACTIVE"
	case ModeCommand:
		return "COMMAND"
	case ModeStreaming:
		return "STREAMING"
	default:
		return "?"
	}
}

// PromptPrefix returns the prompt string shown in the mode.
func (m Mode) PromptPrefix() string {
	switch m {
	case ModeInteractive:
		return "❯ "
	case ModeCommand:
		return ": "
	case ModeStreaming:
		return "… "
	default:
		return "> "
	}
}

// Next returns the successor in the fixed cycle
// Interactive → Command → Streaming → Interactive.
func (m Mode) Next() Mode {
	switch m {
	case ModeInteractive:
		return ModeCommand
	case ModeCommand:
		return ModeStreaming
	default:
		return ModeInteractive
	}
}

func (m Mode) color() backend.Color {
	switch m {
	case ModeInteractive:
		return backend.ColorGreen
	case ModeCommand:
		return backend.ColorYellow
	case ModeStreaming:
		return backend.ColorCyan
	default:
		return backend.ColorDefault
	}
}

// ModeRenderer displays the current input mode and notifies observers
// when it changes.
type ModeRenderer struct {
	mu     sync.Mutex
	target backend.Target

	mode     Mode
	onChange []func(Mode)
}

// NewModeRenderer creates a renderer starting in Interactive mode.
func NewModeRenderer(target backend.Target) *ModeRenderer {
	return &ModeRenderer{target: target}
}

// OnChange registers an observer called with the new mode after every
// change. Observers run in registration order.
func (m *ModeRenderer) OnChange(fn func(Mode)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Mode returns the current mode.
func (m *ModeRenderer) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Cycle advances one step and returns the new mode.
func (m *ModeRenderer) Cycle() Mode {
	m.mu.Lock()
	next := m.mode.Next()
	m.setLocked(next)
	observers := append([]func(Mode){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
	return next
}

// SetMode jumps directly to a mode. Observers fire only on an actual
// change.
func (m *ModeRenderer) SetMode(mode Mode) {
	m.mu.Lock()
	if mode == m.mode {
		m.mu.Unlock()
		return
	}
	m.setLocked(mode)
	observers := append([]func(Mode){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(mode)
	}
}

// Refresh repaints the indicator, for use after a full-screen clear.
func (m *ModeRenderer) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderLocked()
}

func (m *ModeRenderer) setLocked(mode Mode) {
	m.mode = mode
	m.renderLocked()
}

func (m *ModeRenderer) renderLocked() {
	if m.target == nil {
		return
	}
	m.target.MoveCursor(0, 0)
	m.target.ClearLine()
	m.target.SetColor(m.mode.color())
	m.target.Write("[" + m.mode.Label() + "]")
	m.target.ResetFormatting()
}
