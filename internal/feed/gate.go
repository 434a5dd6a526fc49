// Package feed connects the market data stream to the book, the fill
// engine, and the strategy trigger.
package feed

import (
	"sync"
	"time"
)

// Gate debounces strategy wake-ups. Every market update still reaches the
// book and the fill engine; the gate only decides which of them should
// also trigger a strategy synchronization. The first event always passes,
// later ones pass once at least the interval has elapsed since the last
// accepted event.
type Gate struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	last     time.Time
	accepted bool
	dropped  uint64
}

// NewGate creates a gate with the given minimum spacing between accepted
// events. A zero interval accepts everything.
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval, now: time.Now}
}

// WithClock overrides the time source. Test seam.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Accept reports whether this event should trigger the strategy. A
// rejected event is counted, not queued.
func (g *Gate) Accept() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.accepted && now.Sub(g.last) < g.interval {
		g.dropped++
		return false
	}
	g.last = now
	g.accepted = true
	return true
}

// Dropped returns how many events the gate has suppressed.
func (g *Gate) Dropped() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}
