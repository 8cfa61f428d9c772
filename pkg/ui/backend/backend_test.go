package backend

import (
	"strings"
	"testing"
)

// recordingTarget captures writes with the cursor position they landed
// at, so region translation can be asserted exactly.
type recordingTarget struct {
	curX, curY int
	writes     []recordedWrite
	colors     []Color
	resets     int
	width      int
	height     int
}

type recordedWrite struct {
	x, y int
	text string
}

func newRecordingTarget(w, h int) *recordingTarget {
	return &recordingTarget{width: w, height: h}
}

func (r *recordingTarget) Write(text string) {
	r.writes = append(r.writes, recordedWrite{x: r.curX, y: r.curY, text: text})
	r.curX += len(text)
}

func (r *recordingTarget) ClearLine() {
	r.curX = 0
}

func (r *recordingTarget) MoveCursor(x, y int) {
	r.curX, r.curY = x, y
}

func (r *recordingTarget) Size() (int, int) {
	return r.width, r.height
}

func (r *recordingTarget) SetColor(c Color) {
	r.colors = append(r.colors, c)
}

func (r *recordingTarget) ResetFormatting() {
	r.resets++
}

func (r *recordingTarget) allText() string {
	var sb strings.Builder
	for _, w := range r.writes {
		sb.WriteString(w.text)
	}
	return sb.String()
}

func TestSubRegionTranslatesCoordinates(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 10, 5, 20, 4)

	region.MoveCursor(2, 1)
	region.Write("hi")

	if len(parent.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(parent.writes))
	}
	w := parent.writes[0]
	if w.x != 12 || w.y != 6 {
		t.Errorf("write landed at (%d,%d), want (12,6)", w.x, w.y)
	}
	if w.text != "hi" {
		t.Errorf("write text = %q, want %q", w.text, "hi")
	}
}

func TestSubRegionClipsToWidth(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 0, 0, 5, 2)

	region.Write("this is far too long")

	if got := parent.allText(); got != "this " {
		t.Errorf("written text = %q, want %q", got, "this ")
	}
}

func TestSubRegionNewlineAdvancesRow(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 3, 2, 10, 3)

	region.Write("one\ntwo")

	if len(parent.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(parent.writes))
	}
	if parent.writes[0].y != 2 || parent.writes[1].y != 3 {
		t.Errorf("rows = %d,%d, want 2,3", parent.writes[0].y, parent.writes[1].y)
	}
	if parent.writes[1].x != 3 {
		t.Errorf("second write x = %d, want region origin 3", parent.writes[1].x)
	}
}

func TestSubRegionDropsRowsPastBottom(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 0, 0, 10, 2)

	region.Write("a\nb\nc\nd")

	if got := parent.allText(); got != "ab" {
		t.Errorf("written text = %q, want %q", got, "ab")
	}
}

func TestSubRegionMoveCursorClamps(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 10, 10, 5, 3)

	region.MoveCursor(-4, -4)
	if parent.curX != 10 || parent.curY != 10 {
		t.Errorf("cursor = (%d,%d), want origin (10,10)", parent.curX, parent.curY)
	}

	region.MoveCursor(100, 100)
	if parent.curX != 15 || parent.curY != 12 {
		t.Errorf("cursor = (%d,%d), want clamped (15,12)", parent.curX, parent.curY)
	}
}

func TestSubRegionClearLineBlanksRegionWidthOnly(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 10, 5, 8, 2)

	region.MoveCursor(3, 1)
	region.ClearLine()

	if len(parent.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(parent.writes))
	}
	w := parent.writes[0]
	if w.text != strings.Repeat(" ", 8) {
		t.Errorf("blank run = %q, want 8 spaces", w.text)
	}
	if w.x != 10 || w.y != 6 {
		t.Errorf("blank landed at (%d,%d), want (10,6)", w.x, w.y)
	}
	if parent.curX != 10 {
		t.Errorf("cursor x after ClearLine = %d, want region origin 10", parent.curX)
	}
}

func TestSubRegionForwardsStyling(t *testing.T) {
	parent := newRecordingTarget(80, 24)
	region := NewSubRegion(parent, 0, 0, 10, 2)

	region.SetColor(ColorCyan)
	region.ResetFormatting()

	if len(parent.colors) != 1 || parent.colors[0] != ColorCyan {
		t.Errorf("colors = %v, want [ColorCyan]", parent.colors)
	}
	if parent.resets != 1 {
		t.Errorf("resets = %d, want 1", parent.resets)
	}
}

func TestSubRegionSize(t *testing.T) {
	region := NewSubRegion(newRecordingTarget(80, 24), 2, 2, 30, 7)

	w, h := region.Size()
	if w != 30 || h != 7 {
		t.Errorf("Size() = %dx%d, want 30x7", w, h)
	}
}

func TestColorRGBRoundTrip(t *testing.T) {
	c := ColorRGB(0x12, 0x34, 0x56)

	if !c.IsRGB() {
		t.Fatal("expected IsRGB() true")
	}
	r, g, b := c.RGB()
	if r != 0x12 || g != 0x34 || b != 0x56 {
		t.Errorf("RGB() = %x,%x,%x, want 12,34,56", r, g, b)
	}
}

func TestPaletteColorIsNotRGB(t *testing.T) {
	if ColorRed.IsRGB() {
		t.Error("palette color reported as RGB")
	}
	r, g, b := ColorRed.RGB()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("RGB() on palette color = %x,%x,%x, want zeros", r, g, b)
	}
}

func TestStyleBuilder(t *testing.T) {
	s := DefaultStyle().
		Foreground(ColorGreen).
		Background(ColorBlack).
		Bold(true).
		Underline(true)

	fg, bg, attrs := s.Decompose()
	if fg != ColorGreen {
		t.Errorf("fg = %v, want ColorGreen", fg)
	}
	if bg != ColorBlack {
		t.Errorf("bg = %v, want ColorBlack", bg)
	}
	if attrs&AttrBold == 0 {
		t.Error("expected bold attribute")
	}
	if attrs&AttrUnderline == 0 {
		t.Error("expected underline attribute")
	}

	s = s.Bold(false)
	if s.Attributes()&AttrBold != 0 {
		t.Error("bold should be cleared")
	}
	if s.Attributes()&AttrUnderline == 0 {
		t.Error("underline should survive clearing bold")
	}
}
