package sched

import (
	"fmt"
	"time"
)

// LoadShedder disables a designated set of non-critical tasks when CPU
// utilization crosses a high-water mark and re-enables them once it falls
// below a low-water mark. The two thresholds are hysteretic so the set
// does not oscillate. Run is meant to be called from the idle task body;
// its internal window bookkeeping is therefore only ever touched on the
// tick path and needs no locking of its own.
type LoadShedder struct {
	s         *Scheduler
	high, low uint8
	window    Ticks // minimum ticks between evaluations
	shed      []TaskID

	lastTotal Ticks
	lastIdle  Ticks
	active    bool
}

// NewLoadShedder creates a shedder for the given task set. high must be
// strictly above low.
func NewLoadShedder(s *Scheduler, high, low uint8, window Ticks, shed []TaskID) (*LoadShedder, error) {
	if high <= low {
		return nil, fmt.Errorf("sched: shed thresholds high=%d low=%d must satisfy high > low", high, low)
	}
	if window < 1 {
		window = 1
	}
	return &LoadShedder{
		s:      s,
		high:   high,
		low:    low,
		window: window,
		shed:   shed,
	}, nil
}

// Run evaluates utilization over the ticks elapsed since the previous
// evaluation and sheds or restores the designated set. Evaluations closer
// together than the window are skipped.
func (l *LoadShedder) Run() {
	s := l.s
	if s.safety.Load() {
		// The emergency stop owns the enabled bits while it is active.
		return
	}
	s.mu.Lock()
	total := s.metrics.totalTicks
	idle := s.metrics.idleTicks
	now := s.clock.Now()
	s.mu.Unlock()

	elapsed := total - l.lastTotal
	if elapsed < l.window {
		return
	}
	idleDelta := idle - l.lastIdle
	l.lastTotal = total
	l.lastIdle = idle

	util := uint8(100 - (idleDelta*100)/elapsed)

	switch {
	case !l.active && util >= l.high:
		l.active = true
		for _, id := range l.shed {
			s.Disable(id)
		}
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusShed})
	case l.active && util <= l.low:
		l.active = false
		for _, id := range l.shed {
			s.Enable(id)
		}
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusRestore})
	}
}

// Shedding reports whether the shed set is currently disabled.
func (l *LoadShedder) Shedding() bool { return l.active }
