package sched

import (
	"sync/atomic"
	"time"
)

// Clock is the scheduler's time source, in ticks.
type Clock interface {
	Now() Ticks
}

// TickClock emits ticks at a fixed interval and counts them atomically.
// It stands in for the periodic hardware timer interrupt.
type TickClock struct {
	Ch    chan struct{}
	count atomic.Uint64
	stop  chan struct{}
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		Ch:   make(chan struct{}, buffer),
		stop: make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				select {
				case c.Ch <- struct{}{}:
				default:
					// Tick processing fell behind; the count still
					// advances so elapsed-time bookkeeping stays honest.
				}
			case <-c.stop:
				close(c.Ch)
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks.
func (c *TickClock) Stop() {
	close(c.stop)
}

// Now returns the current tick count atomically.
func (c *TickClock) Now() Ticks {
	return Ticks(c.count.Load())
}

// ManualClock is a Clock advanced explicitly. Tests drive the scheduler
// tick by tick with it, and simulated work bodies advance it to model
// execution duration.
type ManualClock struct {
	count atomic.Uint64
}

// Now returns the current tick count.
func (c *ManualClock) Now() Ticks {
	return Ticks(c.count.Load())
}

// Advance moves the clock forward by n ticks and returns the new count.
func (c *ManualClock) Advance(n Ticks) Ticks {
	return Ticks(c.count.Add(uint64(n)))
}
