package sched

import "time"

// Actuators is the hardware primitive for forcing outputs to a defined-safe
// value. Provided by the platform, invoked only by the emergency-stop path.
type Actuators interface {
	Zero()
}

// EStopMonitor is the asynchronous safety interlock. Trigger may be called
// from any goroutine at any instant, including while a task body is
// mid-execution; it synchronizes with the tick path through the scheduler
// mutex and publishes the safety flag through a single-writer atomic.
type EStopMonitor struct {
	s       *Scheduler
	acts    Actuators
	stopped bool     // guarded by s.mu
	saved   []TaskID // tasks disabled by the last trigger, guarded by s.mu
}

// NewEStopMonitor wires the interlock to a scheduler and the actuator
// zeroing primitive.
func NewEStopMonitor(s *Scheduler, acts Actuators) *EStopMonitor {
	return &EStopMonitor{
		s:     s,
		acts:  acts,
		saved: make([]TaskID, 0, s.reg.Capacity()),
	}
}

// Trigger moves the interlock to Stopped: actuator outputs are zeroed, the
// safety flag is set, and every non-essential task is disabled in the same
// logical step, remembering the previously enabled set. Actuators are
// zeroed on every trigger; the task-set transition happens only on the
// Normal to Stopped edge.
func (m *EStopMonitor) Trigger() {
	m.acts.Zero()

	s := m.s
	s.mu.Lock()
	first := !m.stopped
	if first {
		m.stopped = true
		s.safety.Store(true)
		m.saved = m.saved[:0]
		for _, t := range s.reg.tasks {
			if !t.Enabled || t.Essential {
				continue
			}
			t.Enabled = false
			if t.State != StateRunning {
				t.State = StateSuspended
			}
			m.saved = append(m.saved, t.ID)
		}
	}
	now := s.clock.Now()
	s.mu.Unlock()

	if first {
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusEStopTriggered})
	}
}

// Clear returns the interlock to Normal and re-enables the tasks the
// trigger disabled. The transition is never automatic: callers own the
// authorization gate (the telemetry API requires a configured token, a
// physical deployment a debounced reset path). Clearing while already
// Normal is a no-op.
func (m *EStopMonitor) Clear() {
	s := m.s
	s.mu.Lock()
	if !m.stopped {
		s.mu.Unlock()
		return
	}
	m.stopped = false
	for _, id := range m.saved {
		t := s.reg.tasks[id]
		t.Enabled = true
		if t.State == StateSuspended {
			t.State = StateWaiting
		}
	}
	m.saved = m.saved[:0]
	s.safety.Store(false)
	now := s.clock.Now()
	s.mu.Unlock()

	s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusEStopCleared})
}

// Stopped reports whether the interlock is in the Stopped state.
func (m *EStopMonitor) Stopped() bool { return m.s.safety.Load() }
