package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock drives the limiter without real sleeps: Sleep advances the clock.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(limit, window)
	l.now = clk.now
	l.sleep = clk.sleep
	return l, clk
}

func TestAcquireUnderLimitDoesNotBlock(t *testing.T) {
	l, clk := newTestLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		l.Acquire()
	}
	if len(clk.slept) != 0 {
		t.Fatalf("expected no sleeps under the limit, got %v", clk.slept)
	}
}

func TestAcquireDelaysOverLimitCall(t *testing.T) {
	l, clk := newTestLimiter(3, time.Second)
	l.Acquire()
	clk.advance(100 * time.Millisecond)
	l.Acquire()
	clk.advance(100 * time.Millisecond)
	l.Acquire()

	// Fourth call: oldest stamp is 200ms old, so it must wait the remaining 800ms.
	l.Acquire()
	if len(clk.slept) != 1 {
		t.Fatalf("expected exactly one sleep, got %v", clk.slept)
	}
	if got, want := clk.slept[0], 800*time.Millisecond; got != want {
		t.Fatalf("slept %v, want %v", got, want)
	}
}

func TestAcquireAfterWindowExpiryDoesNotBlock(t *testing.T) {
	l, clk := newTestLimiter(2, time.Second)
	l.Acquire()
	l.Acquire()
	clk.advance(2 * time.Second)
	l.Acquire()
	if len(clk.slept) != 0 {
		t.Fatalf("expected no sleep after window expiry, got %v", clk.slept)
	}
}

func TestAcquireConcurrentCallersAllComplete(t *testing.T) {
	l := New(5, 10*time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Acquire calls did not all complete")
	}
}
