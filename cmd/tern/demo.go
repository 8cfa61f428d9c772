package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/tern/pkg/loop"
	"github.com/odvcencio/tern/pkg/message"
	"github.com/odvcencio/tern/pkg/shell"
)

const demoHelp = "## Demo commands\n\n" +
	"- `/help` shows this text\n" +
	"- `/work` runs a simulated background task with progress\n" +
	"- `/status <level> <text>` shows a transient notice\n\n" +
	"Anything else is echoed back as a simulated stream.\n"

// demoProcessor makes the binary useful without an external
// collaborator. Plain input is echoed back as markdown, streamed word
// by word through the queue so the rendering path sees real
// incremental chunks. Slash commands exercise the other display
// surfaces.
type demoProcessor struct {
	mu      sync.Mutex
	sh      *shell.Shell
	cancels map[string]context.CancelFunc
	closed  bool

	chunkDelay time.Duration
}

func newDemoProcessor() *demoProcessor {
	return &demoProcessor{
		cancels:    make(map[string]context.CancelFunc),
		chunkDelay: 35 * time.Millisecond,
	}
}

// Bind gives the processor the shell it answers into. Called right
// after shell construction; the two reference each other.
func (p *demoProcessor) Bind(sh *shell.Shell) {
	p.mu.Lock()
	p.sh = sh
	p.mu.Unlock()
}

// CancelStreams stops every in-flight simulated stream and task.
// Wired to the shell's cancel observer so Escape lands here.
func (p *demoProcessor) CancelStreams() {
	p.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(p.cancels))
	for _, fn := range p.cancels {
		cancels = append(cancels, fn)
	}
	p.mu.Unlock()
	for _, fn := range cancels {
		fn()
	}
}

func (p *demoProcessor) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.CancelStreams()
}

func (p *demoProcessor) Process(ctx context.Context, req loop.Request) (loop.Result, error) {
	input := strings.TrimSpace(req.Input)

	switch {
	case input == "/help":
		return loop.Result{Content: demoHelp}, nil
	case input == "/work":
		p.simulateWork(req.MessageID)
		return loop.Result{Content: "Started a simulated background task."}, nil
	case strings.HasPrefix(input, "/status"):
		return p.pushStatus(input)
	}

	response := demoResponse(input)

	sh := p.boundShell()
	if sh == nil {
		// No queue to stream through; answer in one piece.
		return loop.Result{Content: response}, nil
	}

	p.streamResponse(sh, req.MessageID, response)
	return loop.Result{}, nil
}

// streamResponse delivers the response as out-of-band chunk messages,
// paced so the stream is visibly incremental. Process has already
// returned by the time these arrive, which keeps the consumer free for
// steering input between chunks.
func (p *demoProcessor) streamResponse(sh *shell.Shell, requestID, response string) {
	streamCtx, cancel := context.WithCancel(context.Background())
	if !p.track(requestID, cancel) {
		return
	}

	words := strings.SplitAfter(response, " ")
	go func() {
		defer p.untrack(requestID)
		q := sh.Queue()
		for _, w := range words {
			select {
			case <-streamCtx.Done():
				// Let the loop paint the cancellation note.
				_ = q.Push(message.NewSystemControl(message.ControlCancel, message.PriorityHigh))
				return
			case <-time.After(p.chunkDelay):
			}
			if err := q.Push(message.NewProcessorChunk(requestID, w)); err != nil {
				return
			}
		}
		_ = q.Push(message.NewProcessorResult(requestID, "", nil))
	}()
}

// simulateWork drives the progress surface from a background goroutine
// the way a host embedding the shell would.
func (p *demoProcessor) simulateWork(requestID string) {
	sh := p.boundShell()
	if sh == nil {
		return
	}
	workCtx, cancel := context.WithCancel(context.Background())
	key := "work:" + requestID
	if !p.track(key, cancel) {
		return
	}

	go func() {
		defer p.untrack(key)
		sh.StartProgress("demo task")
		phases := []string{"collecting", "sorting", "verifying", "finishing"}
		for step := 1; step <= 10; step++ {
			select {
			case <-workCtx.Done():
				sh.CancelProgress()
				return
			case <-time.After(180 * time.Millisecond):
			}
			phase := phases[(step-1)*len(phases)/10]
			sh.DisplayProgress(phase, step*10)
		}
		sh.CompleteProgress("demo task finished")
	}()
}

func (p *demoProcessor) pushStatus(input string) (loop.Result, error) {
	parts := strings.SplitN(input, " ", 3)
	if len(parts) < 3 {
		return loop.Result{}, fmt.Errorf("usage: /status <info|warning|error|success> <text>")
	}
	sh := p.boundShell()
	if sh == nil {
		return loop.Result{}, fmt.Errorf("status demo needs a bound shell")
	}
	if err := sh.Queue().Push(message.NewStatusUpdate(parts[1], parts[2])); err != nil {
		return loop.Result{}, err
	}
	return loop.Result{}, nil
}

func (p *demoProcessor) track(key string, cancel context.CancelFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cancel()
		return false
	}
	p.cancels[key] = cancel
	return true
}

func (p *demoProcessor) untrack(key string) {
	p.mu.Lock()
	delete(p.cancels, key)
	p.mu.Unlock()
}

func (p *demoProcessor) boundShell() *shell.Shell {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sh
}

func demoResponse(input string) string {
	var b strings.Builder
	b.WriteString("## Echo\n\n")
	b.WriteString(input)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "_%d words, %d bytes._\n", len(strings.Fields(input)), len(input))
	return b.String()
}
