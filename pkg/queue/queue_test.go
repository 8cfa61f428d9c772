package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/tern/pkg/message"
)

func input(text string) message.UserInput {
	return message.NewUserInput(text)
}

func TestPullRespectsPriorityThenFIFO(t *testing.T) {
	q := New()

	first := message.UserInput{Metadata: message.NewMeta(message.PriorityNormal), Text: "1"}
	second := message.UserInput{Metadata: message.NewMeta(message.PriorityHigh), Text: "2"}
	third := message.UserInput{Metadata: message.NewMeta(message.PriorityNormal), Text: "3"}

	for _, m := range []message.Message{first, second, third} {
		if err := q.Push(m); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	ctx := context.Background()
	var order []string
	for i := 0; i < 3; i++ {
		msg, err := q.Pull(ctx)
		if err != nil {
			t.Fatalf("Pull() error = %v", err)
		}
		order = append(order, msg.(message.UserInput).Text)
	}

	want := []string{"2", "1", "3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("consumption order = %v, want %v", order, want)
		}
	}
}

func TestHighPriorityFIFOWithinClass(t *testing.T) {
	q := New()

	for _, text := range []string{"a", "b", "c"} {
		msg := message.UserInput{Metadata: message.NewMeta(message.PriorityHigh), Text: text}
		if err := q.Push(msg); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		msg, err := q.Pull(ctx)
		if err != nil {
			t.Fatalf("Pull() error = %v", err)
		}
		if got := msg.(message.UserInput).Text; got != want {
			t.Errorf("Pull() = %q, want %q", got, want)
		}
	}
}

func TestPullBlocksUntilPush(t *testing.T) {
	q := New()
	ctx := context.Background()

	got := make(chan message.Message, 1)
	go func() {
		msg, err := q.Pull(ctx)
		if err != nil {
			return
		}
		got <- msg
	}()

	// Give the consumer time to block.
	time.Sleep(20 * time.Millisecond)

	if err := q.Push(input("wake")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	select {
	case msg := <-got:
		if msg.(message.UserInput).Text != "wake" {
			t.Errorf("Pull() = %q, want wake", msg.(message.UserInput).Text)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("blocked consumer was not woken by Push")
	}
}

func TestDoneDrainsPendingFirst(t *testing.T) {
	q := New()

	if err := q.Push(input("pending")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	q.Done()

	ctx := context.Background()

	msg, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull() should return the pending message, got error %v", err)
	}
	if msg.(message.UserInput).Text != "pending" {
		t.Errorf("Pull() = %q, want pending", msg.(message.UserInput).Text)
	}

	_, err = q.Pull(ctx)
	if !IsDrained(err) {
		t.Errorf("Pull() after drain should signal end-of-stream, got %v", err)
	}
}

func TestDoneOnEmptyQueueEndsImmediately(t *testing.T) {
	q := New()
	q.Done()

	_, err := q.Pull(context.Background())
	if !IsDrained(err) {
		t.Errorf("Pull() on done empty queue should signal end-of-stream, got %v", err)
	}
}

func TestDoneWakesBlockedConsumer(t *testing.T) {
	q := New()

	errc := make(chan error, 1)
	go func() {
		_, err := q.Pull(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Done()

	select {
	case err := <-errc:
		if !IsDrained(err) {
			t.Errorf("expected end-of-stream after Done, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Done did not wake the blocked consumer")
	}
}

func TestDoneIsIdempotent(t *testing.T) {
	q := New()
	q.Done()
	q.Done()

	if !q.Closed() {
		t.Error("Closed() should report true after Done")
	}
}

func TestPushAfterDoneRejected(t *testing.T) {
	q := New()
	q.Done()

	err := q.Push(input("late"))
	if err == nil {
		t.Fatal("Push after Done should return an error")
	}
	if !IsDone(err) {
		t.Errorf("error should carry the queue-done code, got %v", err)
	}

	// The rejected message must not surface to the consumer.
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestPullContextCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := q.Pull(ctx)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Pull() error = %v, want context.Canceled", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cancelled Pull did not return")
	}

	// The abandoned waiter must not leak: a later push still works.
	if err := q.Push(input("later")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	msg, err := q.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if msg.(message.UserInput).Text != "later" {
		t.Errorf("Pull() = %q, want later", msg.(message.UserInput).Text)
	}
}

func TestConcurrentProducers(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Push(input("x")); err != nil {
					t.Errorf("Push() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	q.Done()

	ctx := context.Background()
	count := 0
	for {
		_, err := q.Pull(ctx)
		if IsDrained(err) {
			break
		}
		if err != nil {
			t.Fatalf("Pull() error = %v", err)
		}
		count++
	}

	if count != producers*perProducer {
		t.Errorf("consumed %d messages, want %d", count, producers*perProducer)
	}
}

func TestShutdownObservedBeforePendingNormalMessages(t *testing.T) {
	q := New()

	if err := q.Push(input("queued-work")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := q.Push(message.NewShutdown()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	q.Done()

	msg, err := q.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if message.KindOf(msg) != message.KindSystemControl {
		t.Errorf("first message kind = %v, want system control ahead of pending work", message.KindOf(msg))
	}
}
