package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientDialTimeout  = 15 * time.Second
	clientReadDeadline = 60 * time.Second
	clientPingInterval = 54 * time.Second
	clientWriteTimeout = 10 * time.Second
)

// ErrUnauthorized marks responses rejected for missing or bad
// credentials. Callers should stop retrying when they see it.
var ErrUnauthorized = errors.New("remote rejected credentials")

// Client talks to a running shell's remote API. It backs the attach
// subcommand and is usable as a library for scripted steering.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL, e.g.
// "http://127.0.0.1:7433". The token may be empty when the server does
// not require one.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Snapshot fetches the current session state.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.doJSON(ctx, http.MethodGet, "/api/session", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// InjectInput submits a line of input to the shell.
func (c *Client) InjectInput(ctx context.Context, text string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/input", injectRequest{Input: text}, nil)
}

// Cancel requests cancellation of the in-flight message.
func (c *Client) Cancel(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/cancel", nil, nil)
}

// Events dials the event stream and delivers decoded events until the
// context is cancelled or the connection drops, after which the channel
// closes. Reconnecting is the caller's decision.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	wsURL, err := c.wsURL("/api/events")
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = clientDialTimeout
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w (%s)", ErrUnauthorized, resp.Status)
		}
		return nil, fmt.Errorf("dial events: %w", err)
	}

	events := make(chan Event, 64)
	var writeMu sync.Mutex

	// Keepalive pings; the server rarely reads, so write failures are
	// the first disconnect signal.
	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(clientPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(events)
		defer close(pingDone)
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(clientReadDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(clientReadDeadline))
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(clientReadDeadline))

			var event Event
			if err := json.Unmarshal(data, &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (c *Client) wsURL(path string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in base URL", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	return parsed.String(), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w (%s)", ErrUnauthorized, resp.Status)
		}
		if envelope.Message != "" {
			return fmt.Errorf("remote: %s (%s)", envelope.Message, resp.Status)
		}
		return fmt.Errorf("remote: %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
