package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)
	assert.NotNil(t, hub.subscribers)
	assert.False(t, hub.closed)
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	defer unsub()

	event := Event{
		Type:      EventMessageHandled,
		SessionID: "test-session",
		Data:      map[string]any{"kind": "user_input"},
	}

	hub.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, EventMessageHandled, received.Type)
		assert.Equal(t, "test-session", received.SessionID)
		assert.False(t, received.Timestamp.IsZero())
		assert.NotEmpty(t, received.ID, "events should get an id assigned")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch1, unsub1 := hub.Subscribe()
	defer unsub1()
	ch2, unsub2 := hub.Subscribe()
	defer unsub2()

	hub.Publish(Event{Type: EventStreamComplete})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			assert.Equal(t, EventStreamComplete, received.Type)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	unsub()

	// Channel should be closed
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Unsubscribing again should not panic
	assert.NotPanics(t, unsub)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.Subscribe()

	hub.Close()

	// Channel should be closed
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after hub close")

	// Publish should be no-op after close
	assert.NotPanics(t, func() {
		hub.Publish(Event{Type: EventShellStopped})
	})

	// Close again should be a no-op
	assert.NotPanics(t, hub.Close)
}

func TestHub_SubscribeAfterClose(t *testing.T) {
	hub := NewHub()
	hub.Close()

	ch, unsub := hub.Subscribe()
	defer unsub()

	// Channel should already be closed
	_, ok := <-ch
	assert.False(t, ok, "subscription after close should yield a closed channel")
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Subscribe but never consume, so the buffer fills.
	_, unsub := hub.Subscribe()
	defer unsub()

	done := make(chan bool)
	go func() {
		for i := 0; i < 500; i++ {
			hub.Publish(Event{Type: EventStreamChunk, Data: map[string]any{"i": i}})
		}
		done <- true
	}()

	select {
	case <-done:
		// Publish completed without blocking
	case <-time.After(2 * time.Second):
		t.Fatal("publish should not block on a slow subscriber")
	}
}

func TestHub_EventIDsAreUnique(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	defer unsub()

	hub.Publish(Event{Type: EventInputSubmitted})
	hub.Publish(Event{Type: EventInputSubmitted})

	first := <-ch
	second := <-ch
	require.NotEmpty(t, first.ID)
	require.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
}
