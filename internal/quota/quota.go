// Package quota tracks the per-process budget of external API units.
//
// Every call to the search, transcript or source-fetch collaborators is
// admitted by TryConsume first. A denied check is not an error: callers treat
// it as "no candidates" and fall through to the next fallback tier.
package quota

import "sync"

// Unit costs charged before each external call.
const (
	CostSearch      = 100
	CostTranscript  = 10
	CostSourceFetch = 1
)

// Kind names the external call a charge is made for.
type Kind string

const (
	KindSearch      Kind = "search"
	KindTranscript  Kind = "transcript"
	KindSourceFetch Kind = "source_fetch"
)

// Cost returns the unit cost for a call kind.
func (k Kind) Cost() int {
	switch k {
	case KindSearch:
		return CostSearch
	case KindTranscript:
		return CostTranscript
	case KindSourceFetch:
		return CostSourceFetch
	}
	return 0
}

// State is a point-in-time copy of the tracker.
type State struct {
	Consumed int `json:"consumed"`
	Limit    int `json:"limit"`
}

// Observer is notified after every admission decision.
type Observer func(kind Kind, cost int, allowed bool)

// Tracker is the only shared mutable state in a run. Consumed never
// decreases and never exceeds Limit.
type Tracker struct {
	mu       sync.Mutex
	consumed int
	limit    int
	observer Observer
}

// NewTracker creates a tracker with the given unit limit. Negative limits are treated as zero.
func NewTracker(limit int) *Tracker {
	if limit < 0 {
		limit = 0
	}
	return &Tracker{limit: limit}
}

// SetObserver installs a callback invoked after each Charge.
func (t *Tracker) SetObserver(o Observer) {
	t.mu.Lock()
	t.observer = o
	t.mu.Unlock()
}

// TryConsume admits a request for units. It returns false without side effect
// when consumed+units would exceed the limit.
func (t *Tracker) TryConsume(units int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tryConsumeLocked(units)
}

func (t *Tracker) tryConsumeLocked(units int) bool {
	if units < 0 || t.consumed+units > t.limit {
		return false
	}
	t.consumed += units
	return true
}

// Charge is TryConsume for a named call kind, reporting the decision to the observer.
func (t *Tracker) Charge(kind Kind) bool {
	cost := kind.Cost()

	t.mu.Lock()
	ok := t.tryConsumeLocked(cost)
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs(kind, cost, ok)
	}
	return ok
}

// Consumed returns the units spent so far.
func (t *Tracker) Consumed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}

func (t *Tracker) Limit() int {
	return t.limit
}

// Remaining returns the units still available.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit - t.consumed
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Consumed: t.consumed, Limit: t.limit}
}
