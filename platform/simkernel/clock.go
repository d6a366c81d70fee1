// Package simkernel is a reference, in-memory implementation of the
// platform package's interfaces, in the spirit of the teacher's
// store/memory packages (Chapter06/linkgraph/store/memory,
// Chapter06/textindexer/store/memory): a small, fully in-process backend
// suitable for tests and the bundled demo, standing in for a real platform
// binding (e.g. a SimGrid-backed one) that would implement the same
// interfaces out of process. It is not the discrete-event simulation
// kernel spec.md §1 excludes from scope — it is the minimal cooperative
// scheduler the in-scope Worker tasks (spec.md §5) need to exercise
// simulated time against.
package simkernel

import (
	"context"
	"sync"

	"github.com/batsimgo/core/platform"
)

// Clock is a virtual clock that only moves forward once every task that
// has called Enter and not yet called Leave is parked in Sleep. It
// implements platform.Clock.
type Clock struct {
	mu       sync.Mutex
	now      float64
	runnable int
	waiters  []*waiter
}

type waiter struct {
	target float64
	wake   chan struct{}
	fired  bool
}

var _ platform.Clock = (*Clock)(nil)

// NewClock creates a virtual clock starting at simulated time zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current simulated time.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Enter marks the calling task as runnable. Call once when a Worker task
// (spec.md C2-C7) starts.
func (c *Clock) Enter() {
	c.mu.Lock()
	c.runnable++
	c.mu.Unlock()
}

// Leave marks the calling task as finished. Call once when a Worker task
// exits for good (as opposed to merely sleeping).
func (c *Clock) Leave() {
	c.mu.Lock()
	c.runnable--
	c.advanceIfIdleLocked()
	c.mu.Unlock()
}

// Sleep parks the calling task until seconds of simulated time have
// elapsed, or ctx is cancelled. The caller must have already called Enter.
func (c *Clock) Sleep(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}

	c.mu.Lock()
	w := &waiter{target: c.now + seconds, wake: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.runnable--
	c.advanceIfIdleLocked()
	c.mu.Unlock()

	select {
	case <-w.wake:
		// advanceIfIdleLocked already counted this waiter as runnable again
		// when it fired; nothing left to account for here.
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		if !w.fired {
			for i, other := range c.waiters {
				if other == w {
					c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
					break
				}
			}
			c.runnable++
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// PendingWaiters reports how many tasks are currently parked in Sleep;
// useful for tests asserting that a run has actually quiesced.
func (c *Clock) PendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// advanceIfIdleLocked moves now forward to the next pending waiter's
// target and wakes every waiter scheduled at or before that instant, as
// long as no task is presently runnable. Must be called with mu held.
func (c *Clock) advanceIfIdleLocked() {
	for c.runnable <= 0 && len(c.waiters) > 0 {
		next := c.waiters[0].target
		for _, w := range c.waiters[1:] {
			if w.target < next {
				next = w.target
			}
		}
		if next > c.now {
			c.now = next
		}

		var fire, keep []*waiter
		for _, w := range c.waiters {
			if w.target <= c.now+1e-9 {
				fire = append(fire, w)
			} else {
				keep = append(keep, w)
			}
		}
		c.waiters = keep
		if len(fire) == 0 {
			return
		}
		c.runnable += len(fire)
		for _, w := range fire {
			w.fired = true
			close(w.wake)
		}
	}
}
