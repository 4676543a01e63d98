package market

import "sync"

// BreakoutTracker detects the moment a symbol's cumulative volume first
// exceeds its previous session total. Each symbol fires at most once per
// session; Reset clears all state at the session boundary.
type BreakoutTracker struct {
	mu        sync.Mutex
	triggered map[string]struct{}
}

func NewBreakoutTracker() *BreakoutTracker {
	return &BreakoutTracker{triggered: make(map[string]struct{})}
}

// Check reports whether this observation is the symbol's first volume
// breakout of the session. Once a symbol has triggered, every later
// observation returns false until Reset.
func (t *BreakoutTracker) Check(symbol string, todayVolume, prevDayVolume int64) bool {
	if prevDayVolume <= 0 || todayVolume <= prevDayVolume {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.triggered[symbol]; seen {
		return false
	}
	t.triggered[symbol] = struct{}{}
	return true
}

// Triggered reports whether the symbol has already broken out this session.
func (t *BreakoutTracker) Triggered(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, seen := t.triggered[symbol]
	return seen
}

// Reset returns every symbol to the untriggered state. Called at the start
// of a new trading session.
func (t *BreakoutTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.triggered = make(map[string]struct{})
}
