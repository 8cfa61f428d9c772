package remote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClientSnapshot(t *testing.T) {
	_, _, ts := newTestServer(t, Config{RequireToken: true, Token: testToken})
	c := NewClient(ts.URL, testToken)

	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.SessionID != "01J5TESTSESSION" {
		t.Errorf("sessionId = %q, want %q", snap.SessionID, "01J5TESTSESSION")
	}
	if snap.Backend != "sim" {
		t.Errorf("backend = %q, want sim", snap.Backend)
	}
}

func TestClientInjectInputAndCancel(t *testing.T) {
	_, controller, ts := newTestServer(t, Config{RequireToken: true, Token: testToken})
	c := NewClient(ts.URL, testToken)
	ctx := context.Background()

	if err := c.InjectInput(ctx, "steer the loop"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if err := c.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	lines := controller.injectedLines()
	if len(lines) != 1 || lines[0] != "steer the loop" {
		t.Fatalf("injected = %v, want [steer the loop]", lines)
	}
	if controller.cancelCount() != 1 {
		t.Fatalf("cancel count = %d, want 1", controller.cancelCount())
	}
}

func TestClientReportsAuthFailure(t *testing.T) {
	_, _, ts := newTestServer(t, Config{RequireToken: true, Token: testToken})
	c := NewClient(ts.URL, "wrong-token")

	_, err := c.Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected an error for a rejected token")
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %q, want ErrUnauthorized", err)
	}
}

func TestClientEventsStream(t *testing.T) {
	s, _, ts := newTestServer(t, Config{RequireToken: true, Token: testToken})
	c := NewClient(ts.URL, testToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}

	// The welcome snapshot arrives first and confirms registration.
	select {
	case evt := <-events:
		if evt.Type != "server.welcome" {
			t.Fatalf("first event = %q, want server.welcome", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for welcome event")
	}

	s.Hub().Broadcast(Event{Type: "loop.message_handled", Timestamp: time.Now()})

	select {
	case evt := <-events:
		if evt.Type != "loop.message_handled" {
			t.Fatalf("event = %q, want loop.message_handled", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// Events buffered before cancellation may still drain.
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel did not close after cancellation")
	}
}

func TestClientEventsRejectedCredentials(t *testing.T) {
	_, _, ts := newTestServer(t, Config{RequireToken: true, Token: testToken})
	c := NewClient(ts.URL, "wrong-token")

	_, err := c.Events(context.Background())
	if err == nil {
		t.Fatal("expected dial to fail with a bad token")
	}
	if !strings.Contains(err.Error(), "rejected credentials") {
		t.Errorf("error = %q, want it to mention rejected credentials", err)
	}
}

func TestClientWSURLMapping(t *testing.T) {
	cases := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://127.0.0.1:7433", want: "ws://127.0.0.1:7433/api/events"},
		{base: "https://shell.example.com", want: "wss://shell.example.com/api/events"},
		{base: "http://127.0.0.1:7433/", want: "ws://127.0.0.1:7433/api/events"},
		{base: "ws://127.0.0.1:7433", want: "ws://127.0.0.1:7433/api/events"},
		{base: "ftp://127.0.0.1", wantErr: true},
	}
	for _, tc := range cases {
		c := NewClient(tc.base, "")
		got, err := c.wsURL("/api/events")
		if tc.wantErr {
			if err == nil {
				t.Errorf("wsURL(%q) expected an error", tc.base)
			}
			continue
		}
		if err != nil {
			t.Errorf("wsURL(%q) failed: %v", tc.base, err)
			continue
		}
		if got != tc.want {
			t.Errorf("wsURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}
