package remote

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

const (
	maxEventClients  = 16
	maxWSReadBytes   = 64 << 10
	maxInjectBytes   = 64 << 10
	clientSendBuffer = 64

	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second
)

// connLimiter caps concurrent event-stream connections.
type connLimiter struct {
	max    int
	mu     sync.Mutex
	active int
}

func newConnLimiter(max int) *connLimiter {
	return &connLimiter{max: max}
}

func (l *connLimiter) Acquire() bool {
	if l == nil || l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active >= l.max {
		return false
	}
	l.active++
	return true
}

func (l *connLimiter) Release() {
	if l == nil || l.max <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// injectLimiter rate-limits steering endpoints per remote host so a
// misbehaving client cannot flood the queue.
type injectLimiter struct {
	limit rate.Limit
	burst int
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func newInjectLimiter(limit rate.Limit, burst int) *injectLimiter {
	return &injectLimiter{
		limit: limit,
		burst: burst,
		hosts: make(map[string]*rate.Limiter),
	}
}

func (l *injectLimiter) Allow(host string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.hosts[host] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func startWSPing(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(wsPingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}()
}
