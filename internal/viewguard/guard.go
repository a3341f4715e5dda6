// Package viewguard drops results of view requests that have been
// superseded. Each Begin for a view key makes every earlier ticket for that
// key stale, and a ticket also goes stale when its request context ends.
package viewguard

import (
	"context"
	"sync"
)

type Guard struct {
	mu   sync.Mutex
	seq  map[string]uint64
	live map[string]int
}

func New() *Guard {
	return &Guard{seq: map[string]uint64{}, live: map[string]int{}}
}

// Ticket identifies one in-flight render of a view.
type Ticket struct {
	g    *Guard
	ctx  context.Context
	view string
	n    uint64
	once sync.Once
	// released is guarded by g.mu.
	released bool
}

// Begin registers a new render of view and supersedes any earlier one.
func (g *Guard) Begin(ctx context.Context, view string) *Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq[view]++
	g.live[view]++
	return &Ticket{g: g, ctx: ctx, view: view, n: g.seq[view]}
}

// Current reports whether the ticket's result may still be shown.
func (t *Ticket) Current() bool {
	if t.ctx.Err() != nil {
		return false
	}
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	return !t.released && t.g.seq[t.view] == t.n
}

// Done releases the ticket. Keys with no live tickets are forgotten.
func (t *Ticket) Done() {
	t.once.Do(func() {
		t.g.mu.Lock()
		defer t.g.mu.Unlock()
		t.released = true
		t.g.live[t.view]--
		if t.g.live[t.view] <= 0 {
			delete(t.g.live, t.view)
			delete(t.g.seq, t.view)
		}
	})
}

// Len reports how many view keys have live tickets.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}
