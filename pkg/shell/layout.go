package shell

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/odvcencio/tern/pkg/ui/backend"
	"github.com/odvcencio/tern/pkg/ui/terminal"
)

// Frame rows, top to bottom: mode indicator, transcript, progress,
// notices, input, info line. The transcript takes every row the fixed
// chrome leaves over.
const (
	modeRows     = 1
	progressRows = 1
	noticeRows   = 1
	inputRows    = 1
	infoRows     = 1
	chromeRows   = modeRows + progressRows + noticeRows + inputRows + infoRows
)

// paneTarget is a swappable rendering region. Widgets hold the pane for
// their lifetime; the shell retargets it on resize without rebuilding
// the widget.
//
// Every call serializes on the shared render mutex. Widgets paint from
// several goroutines (the loop consumer, the progress ticker, remote
// handlers) and the terminal cursor is shared state; the mutex plus
// self-positioning region writes keep interleaved paints on their own
// rows. Writes also schedule a flush so spinner frames painted from
// widget tickers reach the screen without an explicit frame call.
type paneTarget struct {
	render *sync.Mutex
	flush  func()

	mu     sync.Mutex
	region backend.Target
}

func newPaneTarget(render *sync.Mutex, flush func()) *paneTarget {
	return &paneTarget{render: render, flush: flush}
}

func (p *paneTarget) setRegion(region backend.Target) {
	p.mu.Lock()
	p.region = region
	p.mu.Unlock()
}

func (p *paneTarget) current() backend.Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region
}

func (p *paneTarget) Write(text string) {
	t := p.current()
	if t == nil {
		return
	}
	p.render.Lock()
	t.Write(text)
	p.render.Unlock()
	if p.flush != nil {
		p.flush()
	}
}

func (p *paneTarget) ClearLine() {
	t := p.current()
	if t == nil {
		return
	}
	p.render.Lock()
	t.ClearLine()
	p.render.Unlock()
}

func (p *paneTarget) MoveCursor(x, y int) {
	t := p.current()
	if t == nil {
		return
	}
	p.render.Lock()
	t.MoveCursor(x, y)
	p.render.Unlock()
}

func (p *paneTarget) Size() (width, height int) {
	if t := p.current(); t != nil {
		return t.Size()
	}
	return 0, 0
}

func (p *paneTarget) SetColor(c backend.Color) {
	t := p.current()
	if t == nil {
		return
	}
	p.render.Lock()
	t.SetColor(c)
	p.render.Unlock()
}

func (p *paneTarget) ResetFormatting() {
	t := p.current()
	if t == nil {
		return
	}
	p.render.Lock()
	t.ResetFormatting()
	p.render.Unlock()
}

var _ backend.Target = (*paneTarget)(nil)

// applyLayout recomputes the widget regions for a terminal size. Sizes
// below the chrome minimum are treated as the minimum; the backend
// clips rows that fall off the real screen.
func (s *Shell) applyLayout(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < chromeRows+1 {
		h = chromeRows + 1
	}
	streamRows := h - chromeRows

	s.modePane.setRegion(backend.NewSubRegion(s.term, 0, 0, w, modeRows))
	s.streamPane.setRegion(backend.NewSubRegion(s.term, 0, modeRows, w, streamRows))
	s.progressPane.setRegion(backend.NewSubRegion(s.term, 0, modeRows+streamRows, w, progressRows))
	s.noticePane.setRegion(backend.NewSubRegion(s.term, 0, modeRows+streamRows+progressRows, w, noticeRows))

	s.mu.Lock()
	s.inputRow = h - 2
	s.infoRow = h - 1
	s.mu.Unlock()
}

// pumpEvents forwards terminal events to the focused input manager
// until the backend shuts down. Resizes relayout and repaint before
// normal dispatch resumes.
func (s *Shell) pumpEvents(ctx context.Context) {
	for {
		ev := s.term.PollEvent()
		if ev == nil {
			return
		}
		switch tev := ev.(type) {
		case terminal.ResizeEvent:
			s.applyLayout(tev.Width, tev.Height)
			s.Redraw()
		default:
			s.focus.Dispatch(ev)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// renderInput repaints the prompt row and parks the cursor after the
// edit position. Widget state is gathered before the render lock; the
// mode renderer may be painting under its own lock on another
// goroutine.
func (s *Shell) renderInput() {
	w, _ := s.term.Size()
	s.mu.Lock()
	row := s.inputRow
	prefix := s.prompt
	s.mu.Unlock()
	if row <= 0 {
		return
	}
	if prefix == "" {
		prefix = s.modes.Mode().PromptPrefix()
	}
	line := s.input.Line()
	cursor := s.input.Cursor()

	prefixWidth := runewidth.StringWidth(prefix)
	avail := w - prefixWidth - 1
	if avail < 1 {
		avail = 1
	}
	visible, cursorCol := clipLine(line, cursor, avail)

	s.renderMu.Lock()
	s.term.MoveCursor(0, row)
	s.term.ClearLine()
	s.term.SetColor(backend.ColorCyan)
	s.term.Write(prefix)
	s.term.ResetFormatting()
	s.term.Write(visible)
	s.term.MoveCursor(prefixWidth+cursorCol, row)
	s.term.ShowCursor()
	s.renderMu.Unlock()
	s.flush()
}

// renderInfoLine repaints the bottom summary row: workspace, session,
// counters, queue depth.
func (s *Shell) renderInfoLine() {
	w, _ := s.term.Size()
	s.mu.Lock()
	row := s.infoRow
	messages := s.messageCount
	total := s.totalTokens
	s.mu.Unlock()
	if row <= 0 {
		return
	}

	place := s.ws.Label()
	if place == "" {
		place = "no workspace"
	}
	text := fmt.Sprintf(" %s · %s · %d msgs · %d tokens · queue %d",
		place, shortID(s.sessionID), messages, total, s.queue.Len())

	s.renderMu.Lock()
	s.term.MoveCursor(0, row)
	s.term.ClearLine()
	s.term.SetColor(backend.ColorBrightBlack)
	s.term.Write(runewidth.Truncate(text, w, ""))
	s.term.ResetFormatting()
	s.renderMu.Unlock()
	s.flush()
}

// clipLine windows a line so the cursor stays visible within avail
// cells. Returns the visible text and the cursor's column inside it.
func clipLine(line string, cursor, avail int) (string, int) {
	rs := []rune(line)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(rs) {
		cursor = len(rs)
	}
	start := 0
	for start < cursor && runewidth.StringWidth(string(rs[start:cursor])) >= avail {
		start++
	}
	visible := runewidth.Truncate(string(rs[start:]), avail, "")
	return visible, runewidth.StringWidth(string(rs[start:cursor]))
}

// clearPane blanks every row of a pane before a new stream starts.
func clearPane(t backend.Target) {
	_, h := t.Size()
	for y := 0; y < h; y++ {
		t.MoveCursor(0, y)
		t.ClearLine()
	}
	t.MoveCursor(0, 0)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
