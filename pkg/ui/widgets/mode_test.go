package widgets

import (
	"strings"
	"testing"
)

func TestCycleFromInteractiveYieldsCommand(t *testing.T) {
	m := NewModeRenderer(newPaintTarget())

	if got := m.Cycle(); got != ModeCommand {
		t.Errorf("Cycle() = %v, want command", got)
	}
}

func TestCycleThreeTimesReturnsToStart(t *testing.T) {
	for _, start := range []Mode{ModeInteractive, ModeCommand, ModeStreaming} {
		m := NewModeRenderer(newPaintTarget())
		m.SetMode(start)

		m.Cycle()
		m.Cycle()
		got := m.Cycle()

		if got != start {
			t.Errorf("three cycles from %v = %v, want %v", start, got, start)
		}
	}
}

func TestModeLabelsArePure(t *testing.T) {
	tests := []struct {
		mode   Mode
		label  string
		prefix string
	}{
		{ModeInteractive, "INTERACTIVE", "❯ "},
		{ModeCommand, "COMMAND", ": "},
		{ModeStreaming, "STREAMING", "… "},
	}
	for _, tt := range tests {
		if got := tt.mode.Label(); got != tt.label {
			t.Errorf("%v.Label() = %q, want %q", tt.mode, got, tt.label)
		}
		if got := tt.mode.PromptPrefix(); got != tt.prefix {
			t.Errorf("%v.PromptPrefix() = %q, want %q", tt.mode, got, tt.prefix)
		}
		// Pure: same value on repeat calls.
		if tt.mode.Label() != tt.mode.Label() {
			t.Errorf("%v.Label() not stable", tt.mode)
		}
	}
}

func TestSetModeNotifiesObserversInOrder(t *testing.T) {
	m := NewModeRenderer(newPaintTarget())

	var order []int
	m.OnChange(func(Mode) { order = append(order, 1) })
	m.OnChange(func(Mode) { order = append(order, 2) })

	m.SetMode(ModeStreaming)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("observer order = %v, want [1 2]", order)
	}
}

func TestSetModeSameValueDoesNotNotify(t *testing.T) {
	m := NewModeRenderer(newPaintTarget())

	var fired int
	m.OnChange(func(Mode) { fired++ })

	m.SetMode(ModeInteractive)

	if fired != 0 {
		t.Errorf("observers fired %d times for no-op SetMode, want 0", fired)
	}
}

func TestCyclePaintsLabel(t *testing.T) {
	target := newPaintTarget()
	m := NewModeRenderer(target)

	m.Cycle()

	if !strings.Contains(target.text(), "COMMAND") {
		t.Errorf("painted %q, want mode label", target.text())
	}
}
