// Package queue provides the ordered, awaitable message queue consumed by
// the coordination loop. Multiple producers push; exactly one consumer
// pulls. Ordering is priority descending, FIFO within a priority class.
package queue

import (
	"context"
	"sync"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/message"
)

// Queue is an unbounded priority/FIFO queue with an explicit completion
// signal. Producers never block. After Done, further pushes are rejected
// with a QUEUE_DONE error; the consumer drains whatever was accepted and
// then observes end-of-stream.
type Queue struct {
	mu      sync.Mutex
	high    []message.Message
	normal  []message.Message
	done    bool
	waiters []chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push inserts a message according to its priority. A blocked consumer is
// woken. Pushing after Done returns a QUEUE_DONE error; the message is not
// enqueued.
func (q *Queue) Push(msg message.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.done {
		return terrors.New(terrors.ErrCodeQueueDone, "push after done").
			WithContext("message_id", msg.Meta().ID).
			WithContext("kind", string(message.KindOf(msg)))
	}

	if msg.Meta().Priority == message.PriorityHigh {
		q.high = append(q.high, msg)
	} else {
		q.normal = append(q.normal, msg)
	}

	q.wakeLocked()
	return nil
}

// Done marks the end of enqueues. Idempotent. A blocked consumer is woken
// so it can observe end-of-stream once the queue drains.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.done {
		return
	}
	q.done = true
	q.wakeLocked()
}

// Pull returns the next message in priority/FIFO order. It blocks until a
// message arrives, the queue finishes draining after Done, or ctx is
// cancelled. End-of-stream is reported as a QUEUE_DRAINED error; context
// cancellation returns the context error unchanged.
func (q *Queue) Pull(ctx context.Context) (message.Message, error) {
	for {
		q.mu.Lock()
		if msg, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return msg, nil
		}
		if q.done {
			q.mu.Unlock()
			return nil, terrors.New(terrors.ErrCodeQueueDrained, "queue drained")
		}

		wait := make(chan struct{})
		q.waiters = append(q.waiters, wait)
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			q.removeWaiter(wait)
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}

// Closed reports whether Done has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

func (q *Queue) popLocked() (message.Message, bool) {
	if len(q.high) > 0 {
		msg := q.high[0]
		q.high = q.high[1:]
		return msg, true
	}
	if len(q.normal) > 0 {
		msg := q.normal[0]
		q.normal = q.normal[1:]
		return msg, true
	}
	return nil, false
}

func (q *Queue) wakeLocked() {
	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = nil
}

func (q *Queue) removeWaiter(wait chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == wait {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// IsDone reports whether err is the push-after-done rejection.
func IsDone(err error) bool {
	return terrors.IsCode(err, terrors.ErrCodeQueueDone)
}

// IsDrained reports whether err is the end-of-stream signal.
func IsDrained(err error) bool {
	return terrors.IsCode(err, terrors.ErrCodeQueueDrained)
}
