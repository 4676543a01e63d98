// Package ratelimit bounds outbound broker calls to N requests per rolling
// window. The broker counts every request against the app key, so the limiter
// is shared by every component that talks to it.
package ratelimit

import (
	"sync"
	"time"

	"github.com/seojinpark/volumetrader/internal/metrics"
)

// Limiter admits at most n calls within any rolling window of w. Acquire
// blocks until a slot frees up; it never fails. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time // ring of the last limit call times, oldest first

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	return &Limiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Acquire blocks the caller until issuing one more call keeps the rolling
// window under the limit, then records the call.
func (l *Limiter) Acquire() {
	start := l.now()
	for {
		l.mu.Lock()
		now := l.now()
		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			break
		}
		oldest := l.stamps[0]
		wait := l.window - now.Sub(oldest)
		if wait <= 0 {
			copy(l.stamps, l.stamps[1:])
			l.stamps[len(l.stamps)-1] = now
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()
		l.sleep(wait)
	}
	metrics.APIWaitSeconds.Observe(l.now().Sub(start).Seconds())
}
