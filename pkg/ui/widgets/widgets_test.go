package widgets

import (
	"strings"
	"sync"

	"github.com/odvcencio/tern/pkg/ui/backend"
)

// paintTarget records paint calls. The spinner ticker paints from its
// own goroutine, so access is locked.
type paintTarget struct {
	mu     sync.Mutex
	writes []string
	colors []backend.Color
	clears int
	resets int
}

func newPaintTarget() *paintTarget {
	return &paintTarget{}
}

func (p *paintTarget) Write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, text)
}

func (p *paintTarget) ClearLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
}

func (p *paintTarget) MoveCursor(x, y int) {}

func (p *paintTarget) Size() (int, int) { return 80, 24 }

func (p *paintTarget) SetColor(c backend.Color) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors = append(p.colors, c)
}

func (p *paintTarget) ResetFormatting() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

func (p *paintTarget) text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.writes, "")
}

func (p *paintTarget) sawColor(c backend.Color) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.colors {
		if got == c {
			return true
		}
	}
	return false
}

var _ backend.Target = (*paintTarget)(nil)
