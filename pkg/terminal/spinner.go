package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerFrames are the default spinner animation frames.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// DotsFrames are a denser dots animation.
var DotsFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner animates a single-line wait indicator for operations that run
// outside the shell's screen, like dialing a remote session or writing an
// export. All Stop variants are safe to call more than once; only the
// first takes effect.
type Spinner struct {
	out       io.Writer
	message   string
	frames    []string
	current   int
	interval  time.Duration
	done      chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex
	style     lipgloss.Style
	startTime time.Time
	showTime  bool
}

// NewSpinner creates a spinner writing to stdout.
func NewSpinner(message string) *Spinner {
	return NewSpinnerWithOutput(os.Stdout, message)
}

// NewSpinnerWithOutput creates a spinner with custom output.
func NewSpinnerWithOutput(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:      out,
		message:  message,
		frames:   SpinnerFrames,
		interval: 80 * time.Millisecond,
		done:     make(chan struct{}),
		showTime: true, // Show elapsed time by default
		style: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}),
	}
}

// WithoutTime disables elapsed time display.
func (s *Spinner) WithoutTime() *Spinner {
	s.showTime = false
	return s
}

// SetFrames sets custom animation frames.
func (s *Spinner) SetFrames(frames []string) *Spinner {
	s.frames = frames
	return s
}

// SetInterval sets the animation frame interval.
func (s *Spinner) SetInterval(d time.Duration) *Spinner {
	s.interval = d
	return s
}

// SetMessage updates the spinner message.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.startTime = time.Now()
	go s.run()
}

func (s *Spinner) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			frame := s.frames[s.current%len(s.frames)]
			msg := s.message
			showTime := s.showTime
			startTime := s.startTime
			s.current++
			s.mu.Unlock()

			if showTime && !startTime.IsZero() {
				elapsed := time.Since(startTime).Round(time.Second)
				fmt.Fprintf(s.out, "\r%s %s (%s)", s.style.Render(frame), msg, elapsed)
			} else {
				fmt.Fprintf(s.out, "\r%s %s", s.style.Render(frame), msg)
			}
		}
	}
}

// Elapsed returns the time since the spinner started.
func (s *Spinner) Elapsed() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// finish halts the animation, clears the spinner line, and optionally
// prints a final line in its place.
func (s *Spinner) finish(line string) {
	s.stopOnce.Do(func() {
		close(s.done)
		if line == "" {
			fmt.Fprint(s.out, "\r\033[K")
			return
		}
		fmt.Fprintf(s.out, "\r\033[K%s\n", line)
	})
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.finish("")
}

// StopWithMessage stops and prints a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.finish(message)
}

// StopWithSuccess stops and prints a success message.
func (s *Spinner) StopWithSuccess(message string) {
	elapsed := s.Elapsed().Round(time.Millisecond)
	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"})
	if s.showTime && elapsed > 0 {
		s.finish(fmt.Sprintf("%s %s (%s)", successStyle.Render("✓"), message, elapsed))
		return
	}
	s.finish(fmt.Sprintf("%s %s", successStyle.Render("✓"), message))
}

// StopWithError stops and prints an error message.
func (s *Spinner) StopWithError(message string) {
	elapsed := s.Elapsed().Round(time.Millisecond)
	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
		Bold(true)
	if s.showTime && elapsed > 0 {
		s.finish(fmt.Sprintf("%s %s (%s)", errorStyle.Render("✗"), message, elapsed))
		return
	}
	s.finish(fmt.Sprintf("%s %s", errorStyle.Render("✗"), message))
}

// WithSpinner runs fn with a spinner active and stops it with a success
// or error line depending on the outcome.
func WithSpinner[T any](message string, fn func() (T, error)) (T, error) {
	spinner := NewSpinner(message)
	spinner.Start()

	result, err := fn()

	if err != nil {
		spinner.StopWithError(err.Error())
	} else {
		spinner.StopWithSuccess(message + " done")
	}

	return result, err
}
