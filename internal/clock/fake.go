package clock

import (
	"sync"
	"time"
)

type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// FakeTimer fires immediately and advances its clock by the requested wait.
// It satisfies the backoff.Timer contract.
type FakeTimer struct {
	clock *FakeClock
	ch    chan time.Time

	mu    sync.Mutex
	waits []time.Duration
}

func NewFakeTimer(c *FakeClock) *FakeTimer {
	return &FakeTimer{clock: c, ch: make(chan time.Time, 1)}
}

func (t *FakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	t.clock.Advance(d)
	select {
	case t.ch <- t.clock.Now():
	default:
	}
}

func (t *FakeTimer) Stop() {}

func (t *FakeTimer) C() <-chan time.Time {
	return t.ch
}

// Waits returns every duration passed to Start, in order.
func (t *FakeTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.waits))
	copy(out, t.waits)
	return out
}
