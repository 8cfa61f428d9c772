package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Bridge republishes shell events onto NATS and accepts injected input
// from a companion subject. Subjects derive from a prefix: events go
// to "<prefix>.events", input is read from "<prefix>.input".
type Bridge struct {
	conn       *nats.Conn
	prefix     string
	controller Controller
	sub        *nats.Subscription
	closeOnce  sync.Once
}

// NewBridge connects to NATS. The controller may be nil for
// publish-only bridges.
func NewBridge(url, subjectPrefix string, controller Controller) (*Bridge, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subjectPrefix == "" {
		subjectPrefix = "tern"
	}

	opts := []nats.Option{
		nats.Name("tern-remote"),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Bridge{
		conn:       conn,
		prefix:     subjectPrefix,
		controller: controller,
	}, nil
}

// Start subscribes to the input subject so off-process publishers can
// steer the shell.
func (b *Bridge) Start() error {
	if b.controller == nil {
		return nil
	}

	sub, err := b.conn.Subscribe(b.prefix+".input", func(msg *nats.Msg) {
		var req injectRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			// Bare text payloads are accepted as the input line.
			req.Input = string(msg.Data)
		}
		input := strings.TrimSpace(req.Input)
		if input == "" {
			return
		}
		_ = b.controller.InjectInput(input)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub
	return nil
}

// ForwardEvent implements EventForwarder; register with Hub.AddForwarder.
func (b *Bridge) ForwardEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = b.conn.Publish(b.prefix+".events", data)
}

// Close unsubscribes and drops the connection. Safe to call more than once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		if b.sub != nil {
			_ = b.sub.Unsubscribe()
		}
		b.conn.Close()
	})
}
