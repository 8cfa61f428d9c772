// Package message defines the typed messages flowing through the
// coordination queue. The set of kinds is closed: every variant lives in
// this package and consumers dispatch with a type switch, so a new kind
// fails to compile until every switch handles it.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders messages in the queue. Within one priority class
// delivery is FIFO.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// String returns the priority name for logs.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Metadata carries the identity fields shared by every message variant.
// Messages are immutable once enqueued; Metadata is set at construction.
type Metadata struct {
	ID        string
	Priority  Priority
	CreatedAt time.Time
}

// Meta returns the message metadata. Embedding Metadata in a variant
// promotes this method, satisfying the Message interface.
func (m Metadata) Meta() Metadata { return m }

// NewMeta builds metadata for a fresh message.
func NewMeta(priority Priority) Metadata {
	return Metadata{
		ID:        uuid.NewString(),
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Message is an event consumed by the coordination loop.
type Message interface {
	isMessage()
	Meta() Metadata
}

// UserInput is a line submitted by the user (or injected remotely).
type UserInput struct {
	Metadata
	Text string
}

func (UserInput) isMessage() {}

// ProcessorResult carries the collaborator's response to a UserInput.
// Streaming collaborators push several of these per request; Final
// marks the last one.
type ProcessorResult struct {
	Metadata
	RequestID string
	Content   string
	Final     bool
	Err       error
}

func (ProcessorResult) isMessage() {}

// ControlAction identifies what a SystemControl message asks for.
type ControlAction int

const (
	ControlShutdown ControlAction = iota
	ControlCancel
	ControlRedraw
)

// String returns the action name for logs.
func (a ControlAction) String() string {
	switch a {
	case ControlShutdown:
		return "shutdown"
	case ControlCancel:
		return "cancel"
	case ControlRedraw:
		return "redraw"
	default:
		return "unknown"
	}
}

// SystemControl steers the loop itself rather than the conversation.
type SystemControl struct {
	Metadata
	Action ControlAction
}

func (SystemControl) isMessage() {}

// StatusUpdate displays a transient notice without involving the
// processor. Level matches the display kinds of the shell surface.
type StatusUpdate struct {
	Metadata
	Level string // info, warning, error, success
	Text  string
}

func (StatusUpdate) isMessage() {}

// Kind names a message variant for logging and telemetry.
type Kind string

const (
	KindUserInput       Kind = "user_input"
	KindProcessorResult Kind = "processor_result"
	KindSystemControl   Kind = "system_control"
	KindStatusUpdate    Kind = "status_update"
	KindUnknown         Kind = "unknown"
)

// KindOf maps a message to its kind tag.
func KindOf(m Message) Kind {
	switch m.(type) {
	case UserInput, *UserInput:
		return KindUserInput
	case ProcessorResult, *ProcessorResult:
		return KindProcessorResult
	case SystemControl, *SystemControl:
		return KindSystemControl
	case StatusUpdate, *StatusUpdate:
		return KindStatusUpdate
	default:
		return KindUnknown
	}
}

// NewUserInput builds a normal-priority user input message.
func NewUserInput(text string) UserInput {
	return UserInput{Metadata: NewMeta(PriorityNormal), Text: text}
}

// NewProcessorResult builds a final result message tied to the
// originating request id.
func NewProcessorResult(requestID, content string, err error) ProcessorResult {
	return ProcessorResult{
		Metadata:  NewMeta(PriorityNormal),
		RequestID: requestID,
		Content:   content,
		Final:     true,
		Err:       err,
	}
}

// NewProcessorChunk builds an intermediate streaming chunk.
func NewProcessorChunk(requestID, content string) ProcessorResult {
	return ProcessorResult{
		Metadata:  NewMeta(PriorityNormal),
		RequestID: requestID,
		Content:   content,
	}
}

// NewSystemControl builds a control message at the given priority.
func NewSystemControl(action ControlAction, priority Priority) SystemControl {
	return SystemControl{Metadata: NewMeta(priority), Action: action}
}

// NewShutdown builds the high-priority shutdown control message used by
// the canonical drain-then-stop sequence.
func NewShutdown() SystemControl {
	return NewSystemControl(ControlShutdown, PriorityHigh)
}

// NewStatusUpdate builds a status notice message.
func NewStatusUpdate(level, text string) StatusUpdate {
	return StatusUpdate{Metadata: NewMeta(PriorityNormal), Level: level, Text: text}
}
