package widgets

import (
	"strings"
	"testing"
	"time"
)

func TestProgressStartActivates(t *testing.T) {
	target := newPaintTarget()
	p := NewProgressRenderer(target)
	defer p.Destroy()

	p.Start("indexing")

	if p.State() != ProgressActive {
		t.Errorf("state = %v, want active", p.State())
	}
	if !p.Spinning() {
		t.Error("spinner not running while active")
	}
	if !strings.Contains(target.text(), "indexing") {
		t.Errorf("painted %q, want phase title", target.text())
	}
}

func TestProgressUpdateClamps(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		want    int
	}{
		{"above range", 150, 100},
		{"below range", -5, 0},
		{"in range", 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressRenderer(newPaintTarget())
			defer p.Destroy()

			p.Start("x")
			p.Update(tt.percent, "x")

			if got := p.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgressUpdateIgnoredWhenNotActive(t *testing.T) {
	p := NewProgressRenderer(newPaintTarget())
	defer p.Destroy()

	p.Update(50, "phantom")

	if p.State() != ProgressIdle {
		t.Errorf("state = %v, want idle", p.State())
	}
	if p.Percent() != 0 {
		t.Errorf("percent = %d, want 0", p.Percent())
	}
}

func TestProgressCompleteStopsSpinnerAndReverts(t *testing.T) {
	target := newPaintTarget()
	p := NewProgressRenderer(target)
	defer p.Destroy()
	p.SetRevertDelay(10 * time.Millisecond)

	p.Start("working")
	p.Complete("done")

	if p.Spinning() {
		t.Error("spinner still running after Complete")
	}
	if p.State() != ProgressComplete {
		t.Fatalf("state = %v, want complete", p.State())
	}
	if !strings.Contains(target.text(), "done") {
		t.Errorf("painted %q, want final message", target.text())
	}

	waitForState(t, p, ProgressIdle)
}

func TestProgressCancelShowsCancelledState(t *testing.T) {
	target := newPaintTarget()
	p := NewProgressRenderer(target)
	defer p.Destroy()
	p.SetRevertDelay(10 * time.Millisecond)

	p.Start("working")
	p.Cancel()

	if p.State() != ProgressCancelled {
		t.Errorf("state = %v, want cancelled", p.State())
	}
	if !strings.Contains(target.text(), "cancelled") {
		t.Errorf("painted %q, want cancellation note", target.text())
	}
	waitForState(t, p, ProgressIdle)
}

func TestProgressFailPaintsRed(t *testing.T) {
	target := newPaintTarget()
	p := NewProgressRenderer(target)
	defer p.Destroy()

	p.Start("working")
	p.Fail("disk full")

	if p.State() != ProgressError {
		t.Errorf("state = %v, want error", p.State())
	}
	if !strings.Contains(target.text(), "disk full") {
		t.Errorf("painted %q, want error message", target.text())
	}
}

func TestProgressDestroyStopsSpinner(t *testing.T) {
	p := NewProgressRenderer(newPaintTarget())

	p.Start("working")
	if !p.Spinning() {
		t.Fatal("spinner should run while active")
	}

	p.Destroy()
	if p.Spinning() {
		t.Error("spinner still running after Destroy")
	}
}

func TestProgressDestroyIsIdempotent(t *testing.T) {
	p := NewProgressRenderer(newPaintTarget())
	p.Start("working")

	p.Destroy()
	p.Destroy()
	p.Destroy()

	if p.State() != ProgressIdle {
		t.Errorf("state = %v, want idle", p.State())
	}
}

func TestProgressDestroyNeverStarted(t *testing.T) {
	p := NewProgressRenderer(nil)
	p.Destroy()
	p.Destroy()
}

func TestFrameSetSelection(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"braille", "⠋"},
		{"dots", "⣾"},
		{"bogus", "⠋"},
		{"", "⠋"},
	}
	for _, tt := range tests {
		frames := FrameSet(tt.name)
		if len(frames) == 0 {
			t.Fatalf("FrameSet(%q) returned no frames", tt.name)
		}
		if frames[0] != tt.frame {
			t.Errorf("FrameSet(%q)[0] = %q, want %q", tt.name, frames[0], tt.frame)
		}
	}
}

func TestProgressSetFramesPaintsCustomFrame(t *testing.T) {
	target := newPaintTarget()
	p := NewProgressRenderer(target)
	defer p.Destroy()
	p.SetFrames([]string{"*"})
	p.SetFrames(nil) // ignored

	p.Start("working")

	if !strings.Contains(target.text(), "*") {
		t.Errorf("painted %q, want custom frame", target.text())
	}
}

func TestProgressRestartWhileActive(t *testing.T) {
	p := NewProgressRenderer(newPaintTarget())
	defer p.Destroy()

	p.Start("first")
	p.Update(80, "first")
	p.Start("second")

	if p.Percent() != 0 {
		t.Errorf("percent after restart = %d, want 0", p.Percent())
	}
	if !p.Spinning() {
		t.Error("spinner should run after restart")
	}
}

func waitForState(t *testing.T, p *ProgressRenderer, want ProgressState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if p.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("state = %v, never reached %v", p.State(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
