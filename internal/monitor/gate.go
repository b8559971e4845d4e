package monitor

import (
	"sync"
	"time"
)

// evalGate enforces a minimum gap between evaluations for the same order, so
// a fast tick stream cannot burn CPU and broker quota re-evaluating an order
// it just looked at. Both scheduler models apply the same gate.
type evalGate struct {
	minGap time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	now func() time.Time
}

func newEvalGate(minGap time.Duration) *evalGate {
	return &evalGate{
		minGap: minGap,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// allow reports whether the order may be evaluated now, and records the
// evaluation time when it may.
func (g *evalGate) allow(orderID string) bool {
	if g.minGap <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.last[orderID]; ok && now.Sub(last) < g.minGap {
		return false
	}
	g.last[orderID] = now
	return true
}

func (g *evalGate) forget(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, orderID)
}
