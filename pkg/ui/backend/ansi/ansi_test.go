package ansi

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/tern/pkg/ui/backend"
	"github.com/odvcencio/tern/pkg/ui/terminal"
)

func newTestBackend(input string) (*Backend, *bytes.Buffer) {
	var out bytes.Buffer
	b := NewWithIO(strings.NewReader(input), &out)
	return b, &out
}

func TestWriteEmitsText(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.Write("hello")
	b.Flush()

	if !strings.Contains(out.String(), "hello") {
		t.Errorf("output = %q, want it to contain %q", out.String(), "hello")
	}
}

func TestClearEmitsClearAndHome(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.Clear()
	b.Flush()

	got := out.String()
	if !strings.Contains(got, "\x1b[2J") {
		t.Errorf("output %q missing clear-screen sequence", got)
	}
	if !strings.Contains(got, "\x1b[H") {
		t.Errorf("output %q missing cursor-home sequence", got)
	}
}

func TestMoveCursorIsOneIndexed(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.MoveCursor(0, 0)
	b.MoveCursor(3, 5)
	b.Flush()

	got := out.String()
	if !strings.Contains(got, "\x1b[1;1H") {
		t.Errorf("output %q missing origin move", got)
	}
	if !strings.Contains(got, "\x1b[6;4H") {
		t.Errorf("output %q missing (3,5) move", got)
	}
}

func TestClearLineReturnsToColumnZero(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.ClearLine()
	b.Flush()

	if !strings.Contains(out.String(), "\r\x1b[2K") {
		t.Errorf("output = %q, want carriage return + erase line", out.String())
	}
}

func TestSetColorSGR(t *testing.T) {
	tests := []struct {
		name  string
		color backend.Color
		want  string
	}{
		{"red", backend.ColorRed, "\x1b[31m"},
		{"bright green", backend.ColorBrightGreen, "\x1b[92m"},
		{"default", backend.ColorDefault, "\x1b[39m"},
		{"rgb", backend.ColorRGB(0x10, 0x20, 0x30), "\x1b[38;2;16;32;48m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, out := newTestBackend("")
			if err := b.Init(); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			b.SetColor(tt.color)
			b.Flush()
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestResetFormatting(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.ResetFormatting()
	b.Flush()

	if !strings.Contains(out.String(), "\x1b[0m") {
		t.Errorf("output = %q, want reset sequence", out.String())
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.Destroy()
	first := out.String()
	b.Destroy()
	b.Destroy()

	if out.String() != first {
		t.Error("second Destroy wrote additional output")
	}
	if !strings.Contains(first, "\x1b[?25h") {
		t.Errorf("Destroy output %q missing show-cursor", first)
	}
}

func TestWriteAfterDestroyIsNoOp(t *testing.T) {
	b, out := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.Destroy()
	before := out.String()
	b.Write("late")
	b.Flush()

	if out.String() != before {
		t.Error("Write after Destroy produced output")
	}
}

func TestPollEventAfterDestroyReturnsNil(t *testing.T) {
	b, _ := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b.Destroy()

	done := make(chan terminal.Event, 1)
	go func() { done <- b.PollEvent() }()

	select {
	case ev := <-done:
		if ev != nil {
			t.Errorf("PollEvent() = %v, want nil", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("PollEvent did not return after Destroy")
	}
}

func TestReadLoopParsesRunesAndControls(t *testing.T) {
	b, _ := newTestBackend("a\r\x03")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer b.Destroy()

	wantKeys := []terminal.Key{terminal.KeyRune, terminal.KeyEnter, terminal.KeyCtrlC}
	for i, want := range wantKeys {
		ev := pollKey(t, b)
		if ev.Key != want {
			t.Errorf("event %d: key = %v, want %v", i, ev.Key, want)
		}
	}
}

func TestReadLoopParsesArrowAndShiftTab(t *testing.T) {
	b, _ := newTestBackend("\x1b[A\x1b[Z\x1b[3~")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer b.Destroy()

	up := pollKey(t, b)
	if up.Key != terminal.KeyUp {
		t.Errorf("first event key = %v, want KeyUp", up.Key)
	}
	backtab := pollKey(t, b)
	if backtab.Key != terminal.KeyBacktab || !backtab.Shift {
		t.Errorf("second event = %+v, want shift+backtab", backtab)
	}
	del := pollKey(t, b)
	if del.Key != terminal.KeyDelete {
		t.Errorf("third event key = %v, want KeyDelete", del.Key)
	}
}

func TestReadLoopBracketedPaste(t *testing.T) {
	b, _ := newTestBackend("\x1b[200~hi there\x1b[201~")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer b.Destroy()

	ev := pollEvent(t, b)
	paste, ok := ev.(terminal.PasteEvent)
	if !ok {
		t.Fatalf("event = %T, want PasteEvent", ev)
	}
	if paste.Text != "hi there" {
		t.Errorf("paste text = %q, want %q", paste.Text, "hi there")
	}
}

func TestPostEventRoundTrip(t *testing.T) {
	b, _ := newTestBackend("")
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer b.Destroy()

	if err := b.PostEvent(terminal.ResizeEvent{Width: 120, Height: 40}); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}
	ev := pollEvent(t, b)
	resize, ok := ev.(terminal.ResizeEvent)
	if !ok {
		t.Fatalf("event = %T, want ResizeEvent", ev)
	}
	if resize.Width != 120 || resize.Height != 40 {
		t.Errorf("resize = %+v, want 120x40", resize)
	}
}

func TestSizeFallback(t *testing.T) {
	b, _ := newTestBackend("")
	b.SetSize(100, 30)

	w, h := b.Size()
	if w != 100 || h != 30 {
		t.Errorf("Size() = %dx%d, want 100x30", w, h)
	}
}

func pollEvent(t *testing.T, b *Backend) terminal.Event {
	t.Helper()
	done := make(chan terminal.Event, 1)
	go func() { done <- b.PollEvent() }()
	select {
	case ev := <-done:
		if ev == nil {
			t.Fatal("PollEvent returned nil")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func pollKey(t *testing.T, b *Backend) terminal.KeyEvent {
	t.Helper()
	ev := pollEvent(t, b)
	key, ok := ev.(terminal.KeyEvent)
	if !ok {
		t.Fatalf("event = %T, want KeyEvent", ev)
	}
	return key
}
