package widgets

import (
	"strings"
	"testing"

	"github.com/odvcencio/tern/pkg/ui/backend"
)

func TestStatusDisplayPaintsGlyphAndText(t *testing.T) {
	tests := []struct {
		kind  MessageKind
		glyph string
		color backend.Color
	}{
		{KindInfo, "•", backend.ColorCyan},
		{KindWarning, "!", backend.ColorYellow},
		{KindError, "✗", backend.ColorRed},
		{KindSuccess, "✓", backend.ColorGreen},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			target := newPaintTarget()
			s := NewStatusRenderer(target)

			s.Display("the message", tt.kind)

			if !strings.Contains(target.text(), tt.glyph) {
				t.Errorf("painted %q, want glyph %q", target.text(), tt.glyph)
			}
			if !strings.Contains(target.text(), "the message") {
				t.Errorf("painted %q, want message text", target.text())
			}
			if !target.sawColor(tt.color) {
				t.Errorf("colors %v, want %v", target.colors, tt.color)
			}
		})
	}
}

func TestStatusDisplayReplacesPrevious(t *testing.T) {
	s := NewStatusRenderer(newPaintTarget())

	s.Display("first", KindInfo)
	s.Display("second", KindError)

	text, kind := s.Current()
	if text != "second" || kind != KindError {
		t.Errorf("Current() = %q/%v, want second/error", text, kind)
	}
}

func TestStatusClear(t *testing.T) {
	target := newPaintTarget()
	s := NewStatusRenderer(target)

	s.Display("visible", KindInfo)
	before := target.clears
	s.Clear()

	text, _ := s.Current()
	if text != "" {
		t.Errorf("Current() text = %q, want empty", text)
	}
	if target.clears != before+1 {
		t.Error("Clear did not blank the strip")
	}
}
