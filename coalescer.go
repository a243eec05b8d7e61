package filmic

import (
	"context"
	"sync"
	"time"
)

// ActionCoalescer runs deferred actions at a fixed cadence, keeping only
// the most recently pushed one.
//
// It has a single slot: Push replaces whatever is pending, and the
// replaced action never runs. Each tick takes the pending action, if any,
// and runs it to completion before the next tick is served. Actions
// therefore never overlap, which is what serializes renders.
type ActionCoalescer struct {
	mu         sync.Mutex
	pending    func()
	superseded uint64
	executed   uint64

	runMu    sync.Mutex // held while an action executes
	interval time.Duration

	stop    context.CancelFunc
	done    chan struct{}
	started bool
}

// NewActionCoalescer creates a coalescer. It does not tick until Start.
func NewActionCoalescer(opts ...CoalescerOption) *ActionCoalescer {
	o := coalescerOptions{interval: DefaultTickInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &ActionCoalescer{interval: o.interval}
}

// Interval returns the tick period.
func (c *ActionCoalescer) Interval() time.Duration { return c.interval }

// Push stores a as the pending action, discarding any action that has
// not run yet. A nil action clears the slot.
func (c *ActionCoalescer) Push(a func()) {
	c.mu.Lock()
	if c.pending != nil {
		c.superseded++
		Logger().Debug("coalesced pending action", "superseded", c.superseded)
	}
	c.pending = a
	c.mu.Unlock()
}

// Pending reports whether an action is waiting for the next tick.
func (c *ActionCoalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Counts returns how many actions have executed and how many were
// replaced before they could run.
func (c *ActionCoalescer) Counts() (executed, superseded uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executed, c.superseded
}

// Tick runs the pending action, if any, and reports whether one ran.
//
// The slot is cleared before the action starts, so an action pushed while
// another is executing waits for the following tick. Tick is called by
// the loop started with Start and may also be called directly to drive
// the coalescer manually.
func (c *ActionCoalescer) Tick() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	a := c.pending
	c.pending = nil
	if a != nil {
		c.executed++
	}
	c.mu.Unlock()

	if a == nil {
		return false
	}
	a()
	return true
}

// Start launches the tick loop. It stops when ctx is cancelled or Close
// is called. Calling Start on a running coalescer is a no-op.
func (c *ActionCoalescer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	c.done = make(chan struct{})
	c.started = true
	go c.loop(ctx, c.done)
}

// Close stops the tick loop and waits for a running action to finish.
// The pending action, if any, is dropped.
func (c *ActionCoalescer) Close() {
	c.mu.Lock()
	if !c.started {
		c.pending = nil
		c.mu.Unlock()
		return
	}
	stop, done := c.stop, c.done
	c.started = false
	c.pending = nil
	c.mu.Unlock()

	stop()
	<-done
}

func (c *ActionCoalescer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}
