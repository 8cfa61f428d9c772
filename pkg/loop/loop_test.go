package loop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/tern/pkg/message"
	"github.com/odvcencio/tern/pkg/queue"
)

type fakeProcessor struct {
	mu        sync.Mutex
	requests  []Request
	result    Result
	err       error
	processFn func(ctx context.Context, req Request) (Result, error)
	shutdowns int
}

func (f *fakeProcessor) Process(ctx context.Context, req Request) (Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.processFn
	res, err := f.result, f.err
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

func (f *fakeProcessor) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
}

func (f *fakeProcessor) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeProcessor) inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Input
	}
	return out
}

func (f *fakeProcessor) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

type fakeDisplay struct {
	mu       sync.Mutex
	begins   int
	chunks   []string
	ends     int
	fails    []string
	cancels  int
	statuses []string
	redraws  int
}

func (d *fakeDisplay) BeginResponse() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begins++
}

func (d *fakeDisplay) AppendResponse(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = append(d.chunks, text)
}

func (d *fakeDisplay) EndResponse() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ends++
}

func (d *fakeDisplay) FailResponse(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails = append(d.fails, reason)
}

func (d *fakeDisplay) CancelResponse() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels++
}

func (d *fakeDisplay) ShowStatus(level, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, level+":"+text)
}

func (d *fakeDisplay) Redraw() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.redraws++
}

func (d *fakeDisplay) snapshot() fakeDisplay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fakeDisplay{
		begins:   d.begins,
		chunks:   append([]string{}, d.chunks...),
		ends:     d.ends,
		fails:    append([]string{}, d.fails...),
		cancels:  d.cancels,
		statuses: append([]string{}, d.statuses...),
		redraws:  d.redraws,
	}
}

func drainAndWait(t *testing.T, l *CoordinationLoop, q *queue.Queue) error {
	t.Helper()
	q.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.Wait(ctx)
}

func TestProcessesUserInputThroughProcessor(t *testing.T) {
	proc := &fakeProcessor{result: Result{Content: "response text"}}
	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, proc, d)

	if err := q.Push(message.NewUserInput("hello")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got := proc.inputs(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("processor inputs = %v, want [hello]", got)
	}
	snap := d.snapshot()
	if snap.begins != 1 || snap.ends != 1 {
		t.Errorf("begins/ends = %d/%d, want 1/1", snap.begins, snap.ends)
	}
	if len(snap.chunks) != 1 || snap.chunks[0] != "response text" {
		t.Errorf("chunks = %v, want response content", snap.chunks)
	}
}

func TestStartTwiceNeverDuplicatesConsumption(t *testing.T) {
	proc := &fakeProcessor{}
	q := queue.New()
	l := New(q, proc, &fakeDisplay{})

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v, want no-op nil", err)
	}

	const n = 10
	for i := 0; i < n; i++ {
		if err := q.Push(message.NewUserInput("msg")); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got := proc.requestCount(); got != n {
		t.Errorf("processed %d messages, want exactly %d", got, n)
	}
}

func TestShutdownMessageObservedBeforePendingWork(t *testing.T) {
	proc := &fakeProcessor{}
	q := queue.New()
	l := New(q, proc, &fakeDisplay{})

	if err := q.Push(message.NewUserInput("pending work")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := q.Push(message.NewShutdown()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got := proc.requestCount(); got != 0 {
		t.Errorf("processed %d messages after shutdown, want 0", got)
	}
	if proc.shutdownCount() != 1 {
		t.Errorf("processor shutdowns = %d, want 1", proc.shutdownCount())
	}
}

func TestPanicInHandlerDoesNotStopLoop(t *testing.T) {
	proc := &fakeProcessor{}
	first := true
	proc.processFn = func(ctx context.Context, req Request) (Result, error) {
		if first {
			first = false
			panic("handler exploded")
		}
		return Result{Content: "ok"}, nil
	}

	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, proc, d)

	q.Push(message.NewUserInput("one"))
	q.Push(message.NewUserInput("two"))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v, panic should not be fatal", err)
	}

	if got := proc.requestCount(); got != 2 {
		t.Errorf("processed %d messages, want both despite panic", got)
	}
	snap := d.snapshot()
	if len(snap.fails) == 0 {
		t.Error("expected a failure note for the panicked message")
	}
}

func TestProcessorErrorRendersInline(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("model unavailable")}
	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, proc, d)

	q.Push(message.NewUserInput("ask"))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v, processor failure should not be fatal", err)
	}

	snap := d.snapshot()
	if len(snap.fails) != 1 || !strings.Contains(snap.fails[0], "model unavailable") {
		t.Errorf("fails = %v, want processor error surfaced", snap.fails)
	}
	found := false
	for _, s := range snap.statuses {
		if strings.HasPrefix(s, "error:") {
			found = true
		}
	}
	if !found {
		t.Errorf("statuses = %v, want inline error status", snap.statuses)
	}
}

func TestCancelActiveCancelsInFlightProcess(t *testing.T) {
	proc := &fakeProcessor{}
	started := make(chan struct{})
	proc.processFn = func(ctx context.Context, req Request) (Result, error) {
		close(started)
		<-ctx.Done()
		return Result{}, ctx.Err()
	}

	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, proc, d)

	q.Push(message.NewUserInput("long running"))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("processor never started")
	}

	l.CancelActive()

	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	snap := d.snapshot()
	if snap.cancels != 1 {
		t.Errorf("cancels = %d, want 1", snap.cancels)
	}
	if snap.ends != 0 {
		t.Errorf("ends = %d, want 0 for a cancelled response", snap.ends)
	}
}

func TestStatusUpdateRouted(t *testing.T) {
	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, &fakeProcessor{}, d)

	q.Push(message.NewStatusUpdate("warning", "disk low"))

	l.Start(context.Background())
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	snap := d.snapshot()
	if len(snap.statuses) != 1 || snap.statuses[0] != "warning:disk low" {
		t.Errorf("statuses = %v, want the routed notice", snap.statuses)
	}
}

func TestProcessorResultChunksRouted(t *testing.T) {
	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, &fakeProcessor{}, d)

	q.Push(message.NewProcessorChunk("r1", "ab"))
	q.Push(message.NewProcessorChunk("r1", "cd"))
	q.Push(message.NewProcessorResult("r1", "", nil))

	l.Start(context.Background())
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	snap := d.snapshot()
	if len(snap.chunks) != 2 || snap.chunks[0] != "ab" || snap.chunks[1] != "cd" {
		t.Errorf("chunks = %v, want [ab cd]", snap.chunks)
	}
	if snap.ends != 1 {
		t.Errorf("ends = %d, want 1 on final result", snap.ends)
	}
}

func TestRedrawAndCancelControls(t *testing.T) {
	q := queue.New()
	d := &fakeDisplay{}
	l := New(q, &fakeProcessor{}, d)

	q.Push(message.NewSystemControl(message.ControlRedraw, message.PriorityNormal))
	q.Push(message.NewSystemControl(message.ControlCancel, message.PriorityNormal))

	l.Start(context.Background())
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	snap := d.snapshot()
	if snap.redraws != 1 {
		t.Errorf("redraws = %d, want 1", snap.redraws)
	}
	if snap.cancels != 1 {
		t.Errorf("cancels = %d, want 1", snap.cancels)
	}
}

func TestProcessorShutdownCalledExactlyOnce(t *testing.T) {
	proc := &fakeProcessor{}
	q := queue.New()
	l := New(q, proc, &fakeDisplay{})

	l.Start(context.Background())
	if err := drainAndWait(t, l, q); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	l.Stop()
	l.Stop()

	if got := proc.shutdownCount(); got != 1 {
		t.Errorf("shutdowns = %d, want exactly 1", got)
	}
}

func TestStopBreaksBlockedLoop(t *testing.T) {
	q := queue.New()
	l := New(q, &fakeProcessor{}, &fakeDisplay{})

	l.Start(context.Background())
	l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v, want clean stop", err)
	}
	if l.Running() {
		t.Error("loop still reports running after Stop")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	q := queue.New()
	l := New(q, &fakeProcessor{}, &fakeDisplay{})
	l.Start(context.Background())
	defer func() {
		l.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Wait(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded while loop runs", err)
	}
}
