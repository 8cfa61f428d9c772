// Package widgets holds the stateful display widgets driven by the
// coordination loop: phased progress, the cyclic mode indicator, the
// incremental stream view, and the one-line status strip. Widget logic
// is backend-independent; each widget paints through a backend.Target
// and owns a disjoint region of the screen.
package widgets

import (
	"fmt"
	"sync"
	"time"

	"github.com/odvcencio/tern/pkg/ui/backend"
)

// ProgressState is the phase of the progress display.
type ProgressState int

const (
	ProgressIdle ProgressState = iota
	ProgressActive
	ProgressComplete
	ProgressCancelled
	ProgressError
)

func (s ProgressState) String() string {
	switch s {
	case ProgressIdle:
		return "idle"
	case ProgressActive:
		return "active"
	case ProgressComplete:
		return "complete"
	case ProgressCancelled:
		return "cancelled"
	case ProgressError:
		return "error"
	default:
		return "unknown"
	}
}

// spinnerFrames is the default animation shown while active.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// dotsFrames is the denser alternative.
var dotsFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// FrameSet returns the named spinner frame set. Unknown names fall back
// to the default braille set.
func FrameSet(name string) []string {
	if name == "dots" {
		return dotsFrames
	}
	return spinnerFrames
}

const (
	defaultTickInterval = 80 * time.Millisecond
	defaultRevertDelay  = 2 * time.Second
)

// ProgressRenderer displays a spinner, phase label, and percentage for
// a long-running operation. The spinner ticker runs only while the
// state is Active and is cancelled on every transition out of Active,
// including Destroy. Terminal states revert to Idle after a fixed
// delay.
type ProgressRenderer struct {
	mu     sync.Mutex
	target backend.Target

	state   ProgressState
	phase   string
	percent int
	final   string
	frame   int
	frames  []string

	tickInterval time.Duration
	revertDelay  time.Duration

	spinnerStop chan struct{}
	revertTimer *time.Timer

	destroyed bool
}

// NewProgressRenderer creates an idle renderer painting into target.
func NewProgressRenderer(target backend.Target) *ProgressRenderer {
	return &ProgressRenderer{
		target:       target,
		frames:       spinnerFrames,
		tickInterval: defaultTickInterval,
		revertDelay:  defaultRevertDelay,
	}
}

// SetFrames overrides the spinner animation frames.
func (p *ProgressRenderer) SetFrames(frames []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(frames) > 0 {
		p.frames = frames
	}
}

// SetTickInterval overrides the spinner frame rate.
func (p *ProgressRenderer) SetTickInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d > 0 {
		p.tickInterval = d
	}
}

// SetRevertDelay overrides how long terminal states stay visible.
func (p *ProgressRenderer) SetRevertDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d >= 0 {
		p.revertDelay = d
	}
}

// Start transitions to Active with percent zero. Starting over an
// already-active display restarts it.
func (p *ProgressRenderer) Start(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.stopSpinnerLocked()
	p.cancelRevertLocked()

	p.state = ProgressActive
	p.phase = title
	p.percent = 0
	p.frame = 0

	stop := make(chan struct{})
	p.spinnerStop = stop
	go p.spin(stop, p.tickInterval)

	p.renderLocked()
}

// Update sets the percentage and phase. Valid only while Active;
// percent is clamped to [0, 100].
func (p *ProgressRenderer) Update(percent int, phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ProgressActive {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p.percent = percent
	if phase != "" {
		p.phase = phase
	}
	p.renderLocked()
}

// Complete shows a final success line, then reverts to Idle.
func (p *ProgressRenderer) Complete(msg string) {
	p.finish(ProgressComplete, msg)
}

// Cancel shows a cancellation line, then reverts to Idle.
func (p *ProgressRenderer) Cancel() {
	p.finish(ProgressCancelled, "cancelled")
}

// Fail shows an error line, then reverts to Idle.
func (p *ProgressRenderer) Fail(msg string) {
	p.finish(ProgressError, msg)
}

func (p *ProgressRenderer) finish(state ProgressState, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed || p.state != ProgressActive {
		return
	}
	p.stopSpinnerLocked()

	p.state = state
	if msg == "" {
		msg = p.phase
	}
	p.final = msg
	p.renderLocked()

	p.cancelRevertLocked()
	p.revertTimer = time.AfterFunc(p.revertDelay, p.revertToIdle)
}

func (p *ProgressRenderer) revertToIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	switch p.state {
	case ProgressComplete, ProgressCancelled, ProgressError:
		p.state = ProgressIdle
		p.final = ""
		p.renderLocked()
	}
}

// Destroy stops the spinner and any pending revert. Idempotent and
// safe on a never-started renderer.
func (p *ProgressRenderer) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.stopSpinnerLocked()
	p.cancelRevertLocked()
	p.state = ProgressIdle
}

// Refresh repaints the current state, for use after a full-screen
// clear.
func (p *ProgressRenderer) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderLocked()
}

// State returns the current display state.
func (p *ProgressRenderer) State() ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Percent returns the clamped percentage.
func (p *ProgressRenderer) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

// Spinning reports whether the animation ticker is running.
func (p *ProgressRenderer) Spinning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spinnerStop != nil
}

func (p *ProgressRenderer) stopSpinnerLocked() {
	if p.spinnerStop != nil {
		close(p.spinnerStop)
		p.spinnerStop = nil
	}
}

func (p *ProgressRenderer) cancelRevertLocked() {
	if p.revertTimer != nil {
		p.revertTimer.Stop()
		p.revertTimer = nil
	}
}

func (p *ProgressRenderer) spin(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.advanceFrame()
		}
	}
}

func (p *ProgressRenderer) advanceFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ProgressActive {
		return
	}
	p.frame++
	p.renderLocked()
}

func (p *ProgressRenderer) renderLocked() {
	if p.target == nil || p.destroyed {
		return
	}
	p.target.MoveCursor(0, 0)
	p.target.ClearLine()

	switch p.state {
	case ProgressIdle:
		// Blank row.
	case ProgressActive:
		p.target.SetColor(backend.ColorCyan)
		p.target.Write(p.frames[p.frame%len(p.frames)])
		p.target.ResetFormatting()
		text := " " + p.phase
		if p.percent > 0 {
			text += fmt.Sprintf(" %d%%", p.percent)
		}
		p.target.Write(text)
	case ProgressComplete:
		p.target.SetColor(backend.ColorGreen)
		p.target.Write("✓")
		p.target.ResetFormatting()
		p.target.Write(" " + p.final)
	case ProgressCancelled:
		p.target.SetColor(backend.ColorYellow)
		p.target.Write("⊘")
		p.target.ResetFormatting()
		p.target.Write(" " + p.final)
	case ProgressError:
		p.target.SetColor(backend.ColorRed)
		p.target.Write("✗")
		p.target.ResetFormatting()
		p.target.Write(" " + p.final)
	}
}
