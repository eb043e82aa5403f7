package scheduler

import (
	"sync"
	"time"
)

// gate is a single-slot cooldown. While armed, wait blocks until the timer
// fires. Re-arming replaces the timer and the completion channel together.
type gate struct {
	mu     sync.Mutex
	armed  bool
	done   chan struct{}
	timer  *time.Timer
	armedN int64 // number of times arm was called
}

// wait blocks until the gate is not armed.
func (g *gate) wait() {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return
	}
	done := g.done
	g.mu.Unlock()
	<-done
}

// arm cancels any pending timer and starts a fresh cooldown of d.
func (g *gate) arm(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	done := make(chan struct{})
	g.done = done
	g.armed = true
	g.armedN++
	g.timer = time.AfterFunc(d, func() {
		g.mu.Lock()
		// A stale timer that raced past Stop must not clear a newer cooldown.
		if g.done == done {
			g.armed = false
			g.timer = nil
		}
		g.mu.Unlock()
		close(done)
	})
}

// active reports whether a cooldown is in progress.
func (g *gate) active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}
