// Package loop implements the coordination loop: the single consumer
// of the message queue. It dispatches each message by kind, hands user
// input to the external Processor, and routes outcomes to the display.
// One message failing never stops the loop; only a failure of queue
// iteration itself is fatal.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/logging"
	"github.com/odvcencio/tern/pkg/message"
	"github.com/odvcencio/tern/pkg/queue"
	"github.com/odvcencio/tern/pkg/telemetry"
)

// CoordinationLoop consumes the queue. The started flag guarantees at
// most one consumer ever runs, no matter how many times Start is
// called.
type CoordinationLoop struct {
	queue     *queue.Queue
	processor Processor
	display   Display

	logger *logging.Logger
	hub    *telemetry.Hub
	tracer trace.Tracer

	mu        sync.Mutex
	started   bool
	err       error
	runCancel context.CancelFunc

	running atomic.Bool
	done    chan struct{}

	cancelMu       sync.Mutex
	inFlightCancel context.CancelFunc

	shutdownOnce sync.Once
}

// New creates a loop over the queue, processor, and display.
func New(q *queue.Queue, p Processor, d Display) *CoordinationLoop {
	return &CoordinationLoop{
		queue:     q,
		processor: p,
		display:   d,
		done:      make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (l *CoordinationLoop) SetLogger(logger *logging.Logger) {
	l.logger = logger
}

// SetTelemetry attaches a telemetry hub.
func (l *CoordinationLoop) SetTelemetry(hub *telemetry.Hub) {
	l.hub = hub
}

// SetTracer attaches a tracer for per-message spans.
func (l *CoordinationLoop) SetTracer(tracer trace.Tracer) {
	l.tracer = tracer
}

// Start launches the consumer goroutine. A second call is a no-op that
// logs a warning; it never spawns a second consumer.
func (l *CoordinationLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		l.logWarn(string(terrors.ErrCodeDuplicateStart), "loop already started", nil)
		return nil
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.runCancel = cancel
	l.mu.Unlock()

	l.running.Store(true)
	go l.run(runCtx)
	return nil
}

// Stop breaks the loop immediately, even if it is blocked waiting for
// a message. For a graceful end, push a shutdown control message and
// call Done on the queue instead.
func (l *CoordinationLoop) Stop() {
	l.running.Store(false)
	l.mu.Lock()
	cancel := l.runCancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running reports whether the consumer is active.
func (l *CoordinationLoop) Running() bool {
	return l.running.Load()
}

// Wait blocks until the loop has fully stopped and returns the fatal
// iteration error, if any. Per-message failures never surface here.
func (l *CoordinationLoop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// CancelActive cancels the in-flight Process call, if any.
// Cancellation is advisory: the processor observes it through its
// context and decides when to return.
func (l *CoordinationLoop) CancelActive() {
	l.cancelMu.Lock()
	cancel := l.inFlightCancel
	l.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.publish(telemetry.EventCancelRequested, "", nil)
}

func (l *CoordinationLoop) run(ctx context.Context) {
	defer close(l.done)

	l.publish(telemetry.EventLoopStarted, "", nil)
	l.logInfo("loop_started", "coordination loop started", nil)

	for l.running.Load() {
		msg, err := l.queue.Pull(ctx)
		if err != nil {
			if queue.IsDrained(err) {
				break
			}
			if ctx.Err() != nil {
				break
			}
			iterErr := terrors.Wrap(err, terrors.ErrCodeQueueIteration, "queue iteration failed")
			l.mu.Lock()
			l.err = iterErr
			l.mu.Unlock()
			l.logError("queue_iteration_failed", iterErr.Error(), nil)
			break
		}
		l.handleMessage(ctx, msg)
	}

	l.running.Store(false)
	l.teardown()
}

func (l *CoordinationLoop) teardown() {
	l.shutdownOnce.Do(func() {
		if l.processor != nil {
			l.processor.Shutdown()
		}
	})
	l.publish(telemetry.EventLoopStopped, "", nil)
	l.logInfo("loop_stopped", "coordination loop stopped", nil)
}

// handleMessage dispatches one message with full containment: a panic
// or error in the handler is logged with the message identity and the
// loop moves on.
func (l *CoordinationLoop) handleMessage(ctx context.Context, msg message.Message) {
	kind := message.KindOf(msg)
	id := msg.Meta().ID

	spanCtx, finish := telemetry.StartMessageSpan(ctx, l.tracer, string(kind), id)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = terrors.New(terrors.ErrCodeMessageHandling,
				fmt.Sprintf("panic handling message: %v", r)).
				WithContext("message_id", id).
				WithContext("kind", string(kind))
			l.display.FailResponse("internal error")
		}
		finish(err)
		if err != nil {
			l.logErrorWithID("message_handling_failed", err.Error(), id, map[string]any{
				"kind": string(kind),
			})
			l.publish(telemetry.EventMessageFailed, id, map[string]any{"kind": string(kind)})
			return
		}
		l.publish(telemetry.EventMessageHandled, id, map[string]any{"kind": string(kind)})
	}()

	err = l.dispatch(spanCtx, msg)
}

func (l *CoordinationLoop) dispatch(ctx context.Context, msg message.Message) error {
	switch m := msg.(type) {
	case message.UserInput:
		return l.processInput(ctx, m)
	case message.ProcessorResult:
		return l.routeResult(m)
	case message.SystemControl:
		return l.applyControl(m)
	case message.StatusUpdate:
		l.display.ShowStatus(m.Level, m.Text)
		return nil
	default:
		// Unknown kinds are logged and skipped, never fatal.
		l.logWarn("unknown_message_kind", "skipping message of unknown kind", map[string]any{
			"message_id": msg.Meta().ID,
		})
		l.publish(telemetry.EventMessageUnknown, msg.Meta().ID, nil)
		return nil
	}
}

func (l *CoordinationLoop) processInput(ctx context.Context, m message.UserInput) error {
	mctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.cancelMu.Lock()
	l.inFlightCancel = cancel
	l.cancelMu.Unlock()
	defer func() {
		l.cancelMu.Lock()
		l.inFlightCancel = nil
		l.cancelMu.Unlock()
	}()

	l.display.BeginResponse()
	l.publish(telemetry.EventStreamStarted, m.ID, nil)

	res, err := l.processor.Process(mctx, Request{MessageID: m.ID, Input: m.Text})
	if err != nil {
		if errors.Is(err, context.Canceled) || terrors.IsCode(err, terrors.ErrCodeProcessCanceled) {
			l.display.CancelResponse()
			l.publish(telemetry.EventStreamCancelled, m.ID, nil)
			return nil
		}
		l.display.FailResponse(err.Error())
		l.display.ShowStatus("error", err.Error())
		return terrors.Wrap(err, terrors.ErrCodeProcessFailed, "processor failed").
			WithContext("message_id", m.ID)
	}

	if res.Content != "" {
		l.display.AppendResponse(res.Content)
	}
	l.display.EndResponse()
	l.publish(telemetry.EventStreamComplete, m.ID, nil)
	return nil
}

func (l *CoordinationLoop) routeResult(m message.ProcessorResult) error {
	if m.Err != nil {
		l.display.FailResponse(m.Err.Error())
		l.display.ShowStatus("error", m.Err.Error())
		return terrors.Wrap(m.Err, terrors.ErrCodeProcessFailed, "processor reported failure").
			WithContext("request_id", m.RequestID)
	}
	if m.Content != "" {
		l.display.AppendResponse(m.Content)
	}
	if m.Final {
		l.display.EndResponse()
		l.publish(telemetry.EventStreamComplete, m.RequestID, nil)
	}
	return nil
}

func (l *CoordinationLoop) applyControl(m message.SystemControl) error {
	switch m.Action {
	case message.ControlShutdown:
		// Flip the flag; the loop exits before pulling another
		// message, leaving lower-priority work unprocessed.
		l.running.Store(false)
		return nil
	case message.ControlCancel:
		l.CancelActive()
		l.display.CancelResponse()
		return nil
	case message.ControlRedraw:
		l.display.Redraw()
		return nil
	default:
		l.logWarn("unknown_control_action", "skipping unknown control action", map[string]any{
			"message_id": m.ID,
			"action":     m.Action.String(),
		})
		return nil
	}
}

func (l *CoordinationLoop) publish(event telemetry.EventType, messageID string, data map[string]any) {
	if l.hub == nil {
		return
	}
	l.hub.Publish(telemetry.Event{
		Type:      event,
		MessageID: messageID,
		Data:      data,
	})
}

func (l *CoordinationLoop) logInfo(eventType, msg string, details map[string]any) {
	if l.logger != nil {
		l.logger.Info(logging.CategoryLoop, eventType, msg, details)
	}
}

func (l *CoordinationLoop) logWarn(eventType, msg string, details map[string]any) {
	if l.logger != nil {
		l.logger.Warn(logging.CategoryLoop, eventType, msg, details)
	}
}

func (l *CoordinationLoop) logError(eventType, msg string, details map[string]any) {
	if l.logger != nil {
		l.logger.Error(logging.CategoryLoop, eventType, msg, details)
	}
}

func (l *CoordinationLoop) logErrorWithID(eventType, msg, messageID string, details map[string]any) {
	if l.logger == nil {
		return
	}
	l.logger.Log(logging.Event{
		Level:     logging.LevelError,
		Category:  logging.CategoryLoop,
		EventType: eventType,
		MessageID: messageID,
		Details:   details,
		Message:   msg,
	})
}
