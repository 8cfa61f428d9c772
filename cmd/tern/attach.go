package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/odvcencio/tern/pkg/remote"
	"github.com/odvcencio/tern/pkg/telemetry"
	"github.com/odvcencio/tern/pkg/terminal"
)

type attachOptions struct {
	URL     string
	Token   string
	NoInput bool
}

func parseAttachFlags(args []string) (attachOptions, error) {
	fs := flag.NewFlagSet("attach", flag.ContinueOnError)
	var opts attachOptions
	fs.StringVar(&opts.URL, "url", "http://127.0.0.1:7433", "Base URL of the running session")
	defaultToken := strings.TrimSpace(os.Getenv("TERN_REMOTE_TOKEN"))
	fs.StringVar(&opts.Token, "token", defaultToken, "Remote bearer token")
	fs.BoolVar(&opts.NoInput, "no-input", false, "Watch events only; do not read stdin")
	if err := fs.Parse(args); err != nil {
		return attachOptions{}, err
	}
	if strings.TrimSpace(opts.URL) == "" {
		return attachOptions{}, fmt.Errorf("--url is required")
	}
	return opts, nil
}

func runAttachCommand(args []string) error {
	opts, err := parseAttachFlags(args)
	if err != nil {
		return err
	}

	client := remote.NewClient(opts.URL, opts.Token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		fmt.Println("\nInterrupted, detaching")
		cancel()
	}()

	spinner := terminal.NewSpinner("Connecting to " + opts.URL).WithoutTime()
	spinner.Start()
	snapCtx, snapCancel := context.WithTimeout(ctx, 10*time.Second)
	snap, err := client.Snapshot(snapCtx)
	snapCancel()
	if err != nil {
		spinner.StopWithError("connection failed")
		if errors.Is(err, remote.ErrUnauthorized) {
			return withExitCode(err, 4)
		}
		return err
	}
	spinner.StopWithSuccess("connected to session " + snap.SessionID)

	out := terminal.New()
	out.Info("backend %s, mode %s, %d messages, %d tokens, queue depth %d",
		snap.Backend, snap.Mode, snap.MessageCount, snap.TotalTokens, snap.QueueDepth)
	if snap.Workspace != "" {
		out.Dim("workspace %s, started %s", snap.Workspace, snap.StartedAt.Local().Format(time.RFC822))
	}
	out.Println("Type text to steer the session. :status for a snapshot, :cancel to interrupt, :q to detach.")

	go watchEvents(ctx, client, cancel)

	if opts.NoInput {
		<-ctx.Done()
		return nil
	}
	return attachInputLoop(ctx, client)
}

// watchEvents keeps the event stream alive with exponential backoff.
// The events channel closes when a connection drops; only credential
// rejection ends the watch.
func watchEvents(ctx context.Context, client *remote.Client, cancel context.CancelFunc) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		events, err := client.Events(ctx)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				fmt.Fprintf(os.Stderr, "event stream: %v\n", err)
				cancel()
				return
			}
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "event stream connect failed: %v (retrying in %s)\n", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = 500 * time.Millisecond
		for event := range events {
			printRemoteEvent(event)
		}
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "event stream disconnected (reconnecting in %s)\n", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func attachInputLoop(ctx context.Context, client *remote.Client) error {
	reader := newLineReader(os.Stdin)
	for {
		line, err := reader.read(ctx, "steer> ")
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ":q", ":quit", ":detach":
			fmt.Println("Detached.")
			return nil
		case ":cancel":
			reqCtx, reqCancel := context.WithTimeout(ctx, 10*time.Second)
			err := client.Cancel(reqCtx)
			reqCancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "cancel failed: %v\n", err)
			}
			continue
		case ":status":
			reqCtx, reqCancel := context.WithTimeout(ctx, 10*time.Second)
			snap, err := client.Snapshot(reqCtx)
			reqCancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
				continue
			}
			fmt.Printf("mode %s, %d messages, %d tokens, queue depth %d\n",
				snap.Mode, snap.MessageCount, snap.TotalTokens, snap.QueueDepth)
			continue
		}

		reqCtx, reqCancel := context.WithTimeout(ctx, 10*time.Second)
		err = client.InjectInput(reqCtx, line)
		reqCancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "inject failed: %v\n", err)
		}
	}
}

// lineReader reads stdin on its own goroutine so input waits can race
// against context cancellation. One persistent scanner keeps buffered
// bytes across reads.
type lineReader struct {
	lines chan string
	errs  chan error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string), errs: make(chan error, 1)}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lr.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			lr.errs <- err
			return
		}
		lr.errs <- io.EOF
	}()
	return lr
}

func (lr *lineReader) read(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		fmt.Print(prompt)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-lr.errs:
		return "", err
	case line := <-lr.lines:
		return line, nil
	}
}

func printRemoteEvent(event remote.Event) {
	ts := event.Timestamp.Local().Format("15:04:05")
	switch telemetry.EventType(event.Type) {
	case telemetry.EventInputSubmitted:
		fmt.Printf("[%s] input submitted (%v)\n", ts, payloadField(event, "source"))
	case telemetry.EventStreamStarted:
		fmt.Printf("[%s] response started\n", ts)
	case telemetry.EventStreamComplete:
		fmt.Printf("[%s] response complete\n", ts)
	case telemetry.EventStreamCancelled:
		fmt.Printf("[%s] response cancelled\n", ts)
	case telemetry.EventModeChanged:
		fmt.Printf("[%s] mode changed to %v\n", ts, payloadField(event, "mode"))
	case telemetry.EventCancelRequested:
		fmt.Printf("[%s] cancel requested\n", ts)
	case telemetry.EventProgressStarted:
		fmt.Printf("[%s] progress: %v\n", ts, payloadField(event, "title"))
	case telemetry.EventProgressEnded:
		fmt.Printf("[%s] progress %v\n", ts, payloadField(event, "outcome"))
	case telemetry.EventRemoteInjected:
		fmt.Printf("[%s] remote input injected\n", ts)
	case telemetry.EventShellStopped:
		fmt.Printf("[%s] session ended\n", ts)
	default:
		switch event.Type {
		case "server.welcome", "server.pong":
			return
		}
		fmt.Printf("[%s] %s\n", ts, event.Type)
	}
}

// payloadField digs one key out of an event payload, which arrives as
// generic JSON.
func payloadField(event remote.Event, key string) any {
	payload, ok := event.Payload.(map[string]any)
	if !ok {
		return "?"
	}
	data, ok := payload["data"].(map[string]any)
	if !ok {
		if v, ok := payload[key]; ok {
			return v
		}
		return "?"
	}
	if v, ok := data[key]; ok {
		return v
	}
	return "?"
}
