package widgets

import (
	"strings"
	"testing"
)

func TestStreamAccumulatesAcrossChunkBoundaries(t *testing.T) {
	s := NewStreamRenderer(newPaintTarget())

	var delivered []string
	s.OnComplete(func(full string) { delivered = append(delivered, full) })

	s.Start()
	s.AddChunk("ab")
	s.AddChunk("cd")
	s.Complete()

	if len(delivered) != 1 {
		t.Fatalf("completion callback fired %d times, want exactly 1", len(delivered))
	}
	if delivered[0] != "abcd" {
		t.Errorf("delivered = %q, want %q", delivered[0], "abcd")
	}
}

func TestStreamCompleteTwiceFiresOnce(t *testing.T) {
	s := NewStreamRenderer(newPaintTarget())

	var fired int
	s.OnComplete(func(string) { fired++ })

	s.Start()
	s.AddChunk("x")
	s.Complete()
	s.Complete()

	if fired != 1 {
		t.Errorf("completion fired %d times, want 1", fired)
	}
}

func TestStreamCancelKeepsPartialContent(t *testing.T) {
	target := newPaintTarget()
	s := NewStreamRenderer(target)

	var cancels int
	s.OnCancel(func() { cancels++ })

	s.Start()
	s.AddChunk("partial out")
	s.Cancel()

	if s.Content() != "partial out" {
		t.Errorf("content = %q, want partial text retained", s.Content())
	}
	if cancels != 1 {
		t.Errorf("cancel callback fired %d times, want 1", cancels)
	}
	if !strings.Contains(target.text(), "[cancelled]") {
		t.Errorf("painted %q, want explanatory line", target.text())
	}
	if s.State() != StreamCancelled {
		t.Errorf("state = %v, want cancelled", s.State())
	}
}

func TestStreamCancelThenFailFiresCancelOnce(t *testing.T) {
	s := NewStreamRenderer(newPaintTarget())

	var cancels int
	s.OnCancel(func() { cancels++ })

	s.Start()
	s.Cancel()
	s.Fail("too late")
	s.Complete()

	if cancels != 1 {
		t.Errorf("cancel callback fired %d times, want 1", cancels)
	}
	if s.State() != StreamCancelled {
		t.Errorf("state = %v, want cancelled to stick", s.State())
	}
}

func TestStreamFailFlushesMessage(t *testing.T) {
	target := newPaintTarget()
	s := NewStreamRenderer(target)

	s.Start()
	s.AddChunk("half")
	s.Fail("connection lost")

	if s.State() != StreamError {
		t.Errorf("state = %v, want error", s.State())
	}
	if !strings.Contains(target.text(), "connection lost") {
		t.Errorf("painted %q, want failure note", target.text())
	}
}

func TestStreamChunksOutsideActiveAreDropped(t *testing.T) {
	s := NewStreamRenderer(newPaintTarget())

	s.AddChunk("before start")
	if s.Content() != "" {
		t.Errorf("content = %q, want empty before Start", s.Content())
	}

	s.Start()
	s.AddChunk("live")
	s.Complete()
	s.AddChunk("after complete")

	if s.Content() != "live" {
		t.Errorf("content = %q, want %q", s.Content(), "live")
	}
}

func TestStreamRestartResetsBuffer(t *testing.T) {
	s := NewStreamRenderer(newPaintTarget())

	s.Start()
	s.AddChunk("first run")
	s.Complete()

	s.Start()
	s.AddChunk("second")
	s.Complete()

	if s.Content() != "second" {
		t.Errorf("content = %q, want buffer reset on Start", s.Content())
	}
}

func TestStreamPaintsChunksIncrementally(t *testing.T) {
	target := newPaintTarget()
	s := NewStreamRenderer(target)

	s.Start()
	s.AddChunk("hello ")
	s.AddChunk("world")
	s.Complete()

	if !strings.Contains(target.text(), "hello world") {
		t.Errorf("painted %q, want concatenated chunks", target.text())
	}
}
