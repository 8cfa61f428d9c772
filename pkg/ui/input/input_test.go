package input

import (
	"sync"
	"testing"

	"github.com/odvcencio/tern/pkg/ui/terminal"
)

func typeString(m *Manager, s string) {
	for _, r := range s {
		m.HandleEvent(terminal.KeyEvent{Key: terminal.KeyRune, Rune: r})
	}
}

func press(m *Manager, k terminal.Key) {
	m.HandleEvent(terminal.KeyEvent{Key: k})
}

func TestSubmitInvokesCallbackAndClearsBuffer(t *testing.T) {
	m := NewManager()

	var got string
	m.OnInput(func(text string) { got = text })

	typeString(m, "hello")
	press(m, terminal.KeyEnter)

	if got != "hello" {
		t.Errorf("submitted = %q, want %q", got, "hello")
	}
	if m.Line() != "" {
		t.Errorf("buffer after submit = %q, want empty", m.Line())
	}
}

func TestCallbacksRunInRegistrationOrder(t *testing.T) {
	m := NewManager()

	var order []int
	m.OnInput(func(string) { order = append(order, 1) })
	m.OnInput(func(string) { order = append(order, 2) })
	m.OnInput(func(string) { order = append(order, 3) })

	typeString(m, "x")
	press(m, terminal.KeyEnter)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("invocation order = %v, want [1 2 3]", order)
	}
}

func TestPanickingCallbackDoesNotSuppressOthers(t *testing.T) {
	m := NewManager()

	var recovered any
	m.SetPanicHandler(func(r any) { recovered = r })

	var secondRan bool
	m.OnInput(func(string) { panic("first callback exploded") })
	m.OnInput(func(string) { secondRan = true })

	typeString(m, "boom")
	press(m, terminal.KeyEnter)

	if !secondRan {
		t.Error("second callback did not run after first panicked")
	}
	if recovered != "first callback exploded" {
		t.Errorf("recovered = %v, want panic value", recovered)
	}
}

func TestDisabledManagerDropsEvents(t *testing.T) {
	m := NewManager()

	var submissions int
	m.OnInput(func(string) { submissions++ })

	m.Disable()
	typeString(m, "ignored")
	press(m, terminal.KeyEnter)

	if submissions != 0 {
		t.Errorf("submissions while disabled = %d, want 0", submissions)
	}
	if m.Line() != "" {
		t.Errorf("buffer = %q, want empty", m.Line())
	}

	m.Enable()
	typeString(m, "seen")
	if m.Line() != "seen" {
		t.Errorf("buffer after re-enable = %q, want %q", m.Line(), "seen")
	}
}

func TestBackspaceAndDelete(t *testing.T) {
	m := NewManager()

	typeString(m, "abcd")
	press(m, terminal.KeyBackspace)
	if m.Line() != "abc" {
		t.Errorf("after backspace = %q, want %q", m.Line(), "abc")
	}

	press(m, terminal.KeyHome)
	press(m, terminal.KeyDelete)
	if m.Line() != "bc" {
		t.Errorf("after delete at home = %q, want %q", m.Line(), "bc")
	}
}

func TestCursorMovementAndInsert(t *testing.T) {
	m := NewManager()

	typeString(m, "ac")
	press(m, terminal.KeyLeft)
	typeString(m, "b")

	if m.Line() != "abc" {
		t.Errorf("line = %q, want %q", m.Line(), "abc")
	}
	if m.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", m.Cursor())
	}

	press(m, terminal.KeyEnd)
	if m.Cursor() != 3 {
		t.Errorf("cursor after End = %d, want 3", m.Cursor())
	}
}

func TestCtrlUClearsLine(t *testing.T) {
	m := NewManager()

	typeString(m, "wipe me")
	press(m, terminal.KeyCtrlU)

	if m.Line() != "" {
		t.Errorf("line = %q, want empty", m.Line())
	}
	if m.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0", m.Cursor())
	}
}

func TestPasteInsertsWithNewlinesFlattened(t *testing.T) {
	m := NewManager()

	m.HandleEvent(terminal.PasteEvent{Text: "one\ntwo"})

	if m.Line() != "one two" {
		t.Errorf("line = %q, want %q", m.Line(), "one two")
	}
}

func TestHistoryRecall(t *testing.T) {
	m := NewManager()
	m.OnInput(func(string) {})

	typeString(m, "first")
	press(m, terminal.KeyEnter)
	typeString(m, "second")
	press(m, terminal.KeyEnter)

	press(m, terminal.KeyUp)
	if m.Line() != "second" {
		t.Errorf("after one Up = %q, want %q", m.Line(), "second")
	}
	press(m, terminal.KeyUp)
	if m.Line() != "first" {
		t.Errorf("after two Ups = %q, want %q", m.Line(), "first")
	}
	press(m, terminal.KeyDown)
	if m.Line() != "second" {
		t.Errorf("after Down = %q, want %q", m.Line(), "second")
	}
}

func TestSeedHistoryRestoresRecallWithoutCallbacks(t *testing.T) {
	m := NewManager()
	var fired int
	m.OnInput(func(string) { fired++ })

	m.SeedHistory([]string{"older", "newer"})

	if fired != 0 {
		t.Fatalf("seeding fired %d input callbacks, want 0", fired)
	}
	entries := m.HistoryEntries()
	if len(entries) != 2 || entries[0] != "older" || entries[1] != "newer" {
		t.Fatalf("history = %v, want [older newer]", entries)
	}

	press(m, terminal.KeyUp)
	if m.Line() != "newer" {
		t.Errorf("after Up = %q, want %q", m.Line(), "newer")
	}
	press(m, terminal.KeyUp)
	if m.Line() != "older" {
		t.Errorf("after two Ups = %q, want %q", m.Line(), "older")
	}
}

func TestHistoryDownPastNewestClearsLine(t *testing.T) {
	m := NewManager()

	typeString(m, "submitted")
	press(m, terminal.KeyEnter)

	press(m, terminal.KeyUp)
	if m.Line() != "submitted" {
		t.Fatalf("after Up = %q, want %q", m.Line(), "submitted")
	}
	press(m, terminal.KeyDown)
	if m.Line() != "" {
		t.Errorf("after Down past newest = %q, want cleared line", m.Line())
	}
}

func TestHistoryUpBoundedAtOldest(t *testing.T) {
	m := NewManager()

	typeString(m, "only")
	press(m, terminal.KeyEnter)

	press(m, terminal.KeyUp)
	press(m, terminal.KeyUp)
	press(m, terminal.KeyUp)
	if m.Line() != "only" {
		t.Errorf("line = %q, want oldest entry retained", m.Line())
	}
}

func TestHistoryTrimsSubmittedLines(t *testing.T) {
	m := NewManager()

	typeString(m, "  spaced  ")
	press(m, terminal.KeyEnter)

	entries := m.HistoryEntries()
	if len(entries) != 1 || entries[0] != "spaced" {
		t.Errorf("history = %v, want [spaced]", entries)
	}
}

func TestHistorySkipsEmptyAndConsecutiveDuplicates(t *testing.T) {
	m := NewManager()

	press(m, terminal.KeyEnter)
	typeString(m, "same")
	press(m, terminal.KeyEnter)
	typeString(m, "same")
	press(m, terminal.KeyEnter)

	entries := m.HistoryEntries()
	if len(entries) != 1 || entries[0] != "same" {
		t.Errorf("history = %v, want [same]", entries)
	}
}

func TestHistoryEvictsOldestAtLimit(t *testing.T) {
	m := NewManagerWithHistory(2)

	for _, line := range []string{"one", "two", "three"} {
		typeString(m, line)
		press(m, terminal.KeyEnter)
	}

	entries := m.HistoryEntries()
	if len(entries) != 2 || entries[0] != "two" || entries[1] != "three" {
		t.Errorf("history = %v, want [two three]", entries)
	}
}

func TestControlKeyCallbacks(t *testing.T) {
	m := NewManager()

	var shiftTab, escape, ctrlC, ctrlD int
	m.OnShiftTab(func() { shiftTab++ })
	m.OnEscape(func() { escape++ })
	m.OnCtrlC(func() { ctrlC++ })
	m.OnCtrlD(func() { ctrlD++ })

	press(m, terminal.KeyBacktab)
	press(m, terminal.KeyEscape)
	press(m, terminal.KeyCtrlC)
	press(m, terminal.KeyCtrlD)

	if shiftTab != 1 || escape != 1 || ctrlC != 1 || ctrlD != 1 {
		t.Errorf("callback counts = %d %d %d %d, want all 1", shiftTab, escape, ctrlC, ctrlD)
	}
}

func TestKeypressObserversSeeEveryKey(t *testing.T) {
	m := NewManager()

	var seen []terminal.Key
	m.OnKeypress(func(ev terminal.KeyEvent) { seen = append(seen, ev.Key) })

	typeString(m, "a")
	press(m, terminal.KeyEnter)
	press(m, terminal.KeyEscape)

	want := []terminal.Key{terminal.KeyRune, terminal.KeyEnter, terminal.KeyEscape}
	if len(seen) != len(want) {
		t.Fatalf("observed %d keys, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestInjectSubmitsWithoutTouchingBuffer(t *testing.T) {
	m := NewManager()

	var got string
	m.OnInput(func(text string) { got = text })

	typeString(m, "half-typed")
	m.Inject("from remote")

	if got != "from remote" {
		t.Errorf("injected = %q, want %q", got, "from remote")
	}
	if m.Line() != "half-typed" {
		t.Errorf("buffer = %q, want untouched draft", m.Line())
	}
	entries := m.HistoryEntries()
	if len(entries) != 1 || entries[0] != "from remote" {
		t.Errorf("history = %v, want injected entry", entries)
	}
}

func TestConcurrentEventsDoNotRace(t *testing.T) {
	m := NewManager()
	m.OnInput(func(string) {})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.HandleEvent(terminal.KeyEvent{Key: terminal.KeyRune, Rune: 'x'})
				m.HandleEvent(terminal.KeyEvent{Key: terminal.KeyEnter})
			}
		}()
	}
	wg.Wait()
}
