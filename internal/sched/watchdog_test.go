package sched

import "testing"

type fakeWatchdog struct {
	services int
}

func (f *fakeWatchdog) Service() { f.services++ }

func TestWatchdogServicedWhenCriticalTasksFresh(t *testing.T) {
	reg, clock, s := newTestScheduler(4)
	wd := &fakeWatchdog{}
	sup := NewWatchdogSupervisor(s, wd, 2)

	reg.Register("control", PriorityCritical, 10, 9, func() {}, Critical())

	for i := 0; i < 30; i++ {
		step(clock, s)
	}

	sup.Check()
	if wd.services != 1 {
		t.Errorf("services = %d, want 1 (all critical tasks fresh)", wd.services)
	}
}

func TestWatchdogWithheldWhenCriticalTaskStale(t *testing.T) {
	reg, clock, s := newTestScheduler(4)
	wd := &fakeWatchdog{}
	sup := NewWatchdogSupervisor(s, wd, 2)

	id, _ := reg.Register("control", PriorityCritical, 10, 9, func() {}, Critical())

	for i := 0; i < 30; i++ {
		step(clock, s)
	}

	// Starve the critical task past its 2x-period staleness window while
	// the clock keeps running.
	s.Disable(id)
	clock.Advance(21)
	s.Enable(id) // enabled again, but last_start is now stale

	sup.Check()
	if wd.services != 0 {
		t.Errorf("services = %d, want 0 (critical task stale)", wd.services)
	}

	// Once the task runs again the service resumes.
	step(clock, s)
	sup.Check()
	if wd.services != 1 {
		t.Errorf("services = %d, want 1 after the task caught up", wd.services)
	}
}

func TestWatchdogWithheldWhileSafetyFlagSet(t *testing.T) {
	reg, clock, s := newTestScheduler(4)
	wd := &fakeWatchdog{}
	sup := NewWatchdogSupervisor(s, wd, 2)
	estop := NewEStopMonitor(s, &fakeActuators{})

	reg.Register("control", PriorityCritical, 10, 9, func() {}, Critical(), Essential())
	for i := 0; i < 30; i++ {
		step(clock, s)
	}

	estop.Trigger()
	sup.Check()
	if wd.services != 0 {
		t.Errorf("services = %d, want 0 while the safety flag is set", wd.services)
	}

	estop.Clear()
	sup.Check()
	if wd.services != 1 {
		t.Errorf("services = %d, want 1 after clear", wd.services)
	}
}

func TestWatchdogIgnoresNonCriticalTasks(t *testing.T) {
	reg, clock, s := newTestScheduler(4)
	wd := &fakeWatchdog{}
	sup := NewWatchdogSupervisor(s, wd, 2)

	reg.Register("control", PriorityCritical, 10, 9, func() {}, Critical())
	ui, _ := reg.Register("ui", PriorityLow, 10, 9, func() {})

	for i := 0; i < 30; i++ {
		step(clock, s)
	}
	s.Disable(ui)
	clock.Advance(100)

	// A stale non-critical task does not gate the watchdog, but the
	// critical one is now stale too after the jump.
	sup.Check()
	if wd.services != 0 {
		t.Fatalf("services = %d, want 0 (critical stale after clock jump)", wd.services)
	}

	step(clock, s) // control runs, freshening last_start
	sup.Check()
	if wd.services != 1 {
		t.Errorf("services = %d, want 1 (stale ui must not gate)", wd.services)
	}
}
