package input

import (
	"sync"

	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// FocusScope tracks which Manager receives terminal events. Handing
// focus over is two-phase: the current holder is disabled before the
// next one is enabled, so no keystroke is ever seen by two listeners.
// Releases restore the previous holder, which lets modal surfaces nest.
type FocusScope struct {
	mu    sync.Mutex
	stack []*Manager
}

// NewFocusScope creates an empty scope.
func NewFocusScope() *FocusScope {
	return &FocusScope{}
}

// Acquire makes m the active listener and returns its release
// function. The release is idempotent and restores whichever manager
// held focus before.
func (f *FocusScope) Acquire(m *Manager) (release func()) {
	f.mu.Lock()
	if top := f.topLocked(); top != nil {
		top.Disable()
	}
	f.stack = append(f.stack, m)
	m.Enable()
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { f.release(m) })
	}
}

func (f *FocusScope) release(m *Manager) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.stack) - 1; i >= 0; i-- {
		if f.stack[i] == m {
			f.stack = append(f.stack[:i], f.stack[i+1:]...)
			m.Disable()
			break
		}
	}
	if top := f.topLocked(); top != nil {
		top.Enable()
	}
}

// Active returns the manager currently receiving events, or nil.
func (f *FocusScope) Active() *Manager {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topLocked()
}

// Dispatch forwards an event to the active manager. Events arriving
// while no manager holds focus are dropped.
func (f *FocusScope) Dispatch(ev terminal.Event) {
	if m := f.Active(); m != nil {
		m.HandleEvent(ev)
	}
}

func (f *FocusScope) topLocked() *Manager {
	if len(f.stack) == 0 {
		return nil
	}
	return f.stack[len(f.stack)-1]
}
