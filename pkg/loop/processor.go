package loop

import "context"

// Request is one unit of work handed to the processing collaborator.
type Request struct {
	MessageID string
	Input     string
}

// Result is the collaborator's response.
type Result struct {
	Content string
}

// Processor is the external business-logic collaborator. The loop only
// calls Process and routes the outcome; what a request means is not its
// concern. Process must honor ctx cancellation cooperatively.
type Processor interface {
	Process(ctx context.Context, req Request) (Result, error)

	// Shutdown is called exactly once during coordinated teardown.
	Shutdown()
}

// Display receives the loop's visible output. The shell implements it
// on top of the stream, progress, and status widgets.
type Display interface {
	// BeginResponse opens a response stream.
	BeginResponse()
	// AppendResponse adds text to the open stream, opening one if
	// needed.
	AppendResponse(text string)
	// EndResponse completes the stream.
	EndResponse()
	// FailResponse ends the stream with an explanatory note.
	FailResponse(reason string)
	// CancelResponse ends the stream as cancelled.
	CancelResponse()
	// ShowStatus displays a transient notice. Level is one of info,
	// warning, error, success.
	ShowStatus(level, text string)
	// Redraw repaints the full surface.
	Redraw()
}
