// Package monitor owns the periodic check loop: it probes every configured
// product, tracks stock transitions and decides when a transition deserves
// an email alert.
package monitor

import (
	"sync"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/probe"
)

type productState struct {
	inStock      bool
	lastNotified time.Time
}

// Tracker holds the runtime stock state per product. It is the authority
// between cycles; the config file only seeds it (on startup and when new
// products appear) and receives its state back for persistence.
type Tracker struct {
	mu     sync.Mutex
	states map[string]productState
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]productState)}
}

// Sync adds tracker entries for products it has not seen, seeded from their
// persisted state, and drops entries for products no longer configured.
// Known products keep their live state: the tracker, not the file, is
// current mid-run.
func (t *Tracker) Sync(products []config.Product) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keep := make(map[string]bool, len(products))
	for _, p := range products {
		keep[p.ID] = true
		if _, ok := t.states[p.ID]; !ok {
			t.states[p.ID] = productState{inStock: p.InStock, lastNotified: p.LastNotified}
		}
	}
	for id := range t.states {
		if !keep[id] {
			delete(t.states, id)
		}
	}
}

// Outcome is the tracker's verdict for one reading.
type Outcome struct {
	// Transitioned is true when the stock state flipped.
	Transitioned bool
	// Notify is true when an alert should go out: the product came back in
	// stock and the last alert is older than the cooldown. Going out of
	// stock re-arms the alert but never notifies.
	Notify bool
}

// Observe folds a successful reading into the product's state. Products not
// previously synced are treated as starting out of stock.
func (t *Tracker) Observe(id string, r probe.Reading, cooldown time.Duration, now time.Time) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[id]
	var out Outcome
	out.Transitioned = st.inStock != r.InStock

	if out.Transitioned && r.InStock {
		out.Notify = st.lastNotified.IsZero() || now.Sub(st.lastNotified) >= cooldown
	}

	st.inStock = r.InStock
	t.states[id] = st
	return out
}

// MarkNotified records a delivered alert so the cooldown gate applies to the
// next transition.
func (t *Tracker) MarkNotified(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[id]
	st.lastNotified = at
	t.states[id] = st
}

// State reports the tracked stock flag and last-notified time for one
// product. The second return is false when the product is unknown.
func (t *Tracker) State(id string) (inStock bool, lastNotified time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, found := t.states[id]
	return st.inStock, st.lastNotified, found
}
