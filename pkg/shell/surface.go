package shell

import (
	"github.com/odvcencio/tern/pkg/remote"
	"github.com/odvcencio/tern/pkg/telemetry"
)

// Host-facing surface. Processors and embedding programs drive these to
// show work the loop does not know about; every call is safe from any
// goroutine.

// DisplayMessage shows a transient notice. Kind is one of "info",
// "warning", "error", or "success"; unknown kinds render as info. The
// notice also lands in the session transcript.
func (s *Shell) DisplayMessage(text, kind string) {
	s.paint("status", func() { s.notices.Display(text, statusKind(kind)) })
	s.recordStatus(text)
	s.flush()
}

// StartProgress begins an animated progress row.
func (s *Shell) StartProgress(title string) {
	s.paint("progress", func() { s.progress.Start(title) })
	s.publish(telemetry.EventProgressStarted, "", map[string]any{"title": title})
	s.flush()
}

// DisplayProgress updates the active progress row with a phase label
// and a percentage. Percent zero keeps the row indeterminate.
func (s *Shell) DisplayProgress(phase string, percent int) {
	s.paint("progress", func() { s.progress.Update(percent, phase) })
	s.publish(telemetry.EventProgressUpdated, "", map[string]any{"phase": phase, "percent": percent})
	s.flush()
}

// CompleteProgress finishes the progress row with a final message.
func (s *Shell) CompleteProgress(msg string) {
	s.paint("progress", func() { s.progress.Complete(msg) })
	s.publish(telemetry.EventProgressEnded, "", map[string]any{"outcome": "complete"})
	s.flush()
}

// CancelProgress abandons the progress row.
func (s *Shell) CancelProgress() {
	s.paint("progress", s.progress.Cancel)
	s.publish(telemetry.EventProgressEnded, "", map[string]any{"outcome": "cancelled"})
	s.flush()
}

// FailProgress finishes the progress row in the error state.
func (s *Shell) FailProgress(msg string) {
	s.paint("progress", func() { s.progress.Fail(msg) })
	s.publish(telemetry.EventProgressEnded, "", map[string]any{"outcome": "failed"})
	s.flush()
}

// StartStreaming opens the incremental response view for content
// produced outside a request cycle.
func (s *Shell) StartStreaming() {
	s.paint("stream", func() {
		clearPane(s.streamPane)
		s.stream.Start()
	})
	s.flush()
}

// AddStreamChunk appends text to the open stream. Chunks sent while no
// stream is open are dropped.
func (s *Shell) AddStreamChunk(text string) {
	s.paint("stream", func() { s.stream.AddChunk(text) })
	s.flush()
}

// CompleteStream finalizes the open stream, firing completion
// callbacks.
func (s *Shell) CompleteStream() {
	s.paint("stream", s.stream.Complete)
	s.flush()
}

// CancelStream abandons the open stream.
func (s *Shell) CancelStream() {
	s.paint("stream", s.stream.Cancel)
	s.flush()
}

// UpdatePrompt overrides the prompt prefix. The empty string restores
// the mode-derived prompt.
func (s *Shell) UpdatePrompt(text string) {
	s.mu.Lock()
	s.prompt = text
	s.mu.Unlock()
	s.renderInput()
}

// ClearScreen wipes the terminal and repaints the frame chrome. The
// transcript area stays blank until the next response.
func (s *Shell) ClearScreen() {
	s.renderMu.Lock()
	s.term.Clear()
	s.renderMu.Unlock()
	s.paint("mode", s.modes.Refresh)
	s.renderInfoLine()
	s.renderInput()
	s.flush()
}

// Remote steering contract. The remote server calls these from HTTP
// handler goroutines.

// Snapshot reports the session state for remote observers.
func (s *Shell) Snapshot() remote.Snapshot {
	s.mu.Lock()
	messages := s.messageCount
	total := s.totalTokens
	s.mu.Unlock()

	return remote.Snapshot{
		SessionID:    s.sessionID,
		Backend:      s.backendName,
		Mode:         s.modes.Mode().String(),
		QueueDepth:   s.queue.Len(),
		MessageCount: messages,
		TotalTokens:  total,
		Workspace:    s.ws.Label(),
		StartedAt:    s.startedAt,
	}
}

// InjectInput queues a line exactly as if it had been typed locally:
// same queue, same persistence, same telemetry.
func (s *Shell) InjectInput(text string) error {
	return s.submit(text, "remote")
}

// CancelActive interrupts the in-flight message on behalf of a remote
// steerer.
func (s *Shell) CancelActive() error {
	s.requestCancel()
	return nil
}
