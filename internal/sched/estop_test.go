package sched

import "testing"

type fakeActuators struct {
	zeros int
}

func (f *fakeActuators) Zero() { f.zeros++ }

func newEStopFixture(t *testing.T) (*Registry, *ManualClock, *Scheduler, *EStopMonitor, *fakeActuators) {
	t.Helper()
	reg, clock, s := newTestScheduler(8)
	acts := &fakeActuators{}
	return reg, clock, s, NewEStopMonitor(s, acts), acts
}

func TestTriggerSetsFlagAndDisablesNonEssential(t *testing.T) {
	reg, _, s, estop, acts := newEStopFixture(t)

	control, _ := reg.Register("control", PriorityCritical, 10, 9, func() {}, Critical(), Essential())
	wdTask, _ := reg.Register("watchdog_service", PriorityHigh, 500, 450, func() {}, Essential())
	comm, _ := reg.Register("comm", PriorityNormal, 50, 45, func() {})
	ui, _ := reg.Register("ui", PriorityLow, 200, 180, func() {})

	estop.Trigger()

	if !s.SafetyActive() {
		t.Fatal("safety flag not set after trigger")
	}
	if acts.zeros != 1 {
		t.Errorf("actuator zeroing invoked %d times, want exactly 1", acts.zeros)
	}

	for _, tc := range []struct {
		id   TaskID
		want bool
	}{
		{control, true},
		{wdTask, true},
		{comm, false},
		{ui, false},
	} {
		snap, _ := s.Task(tc.id)
		if snap.Enabled != tc.want {
			t.Errorf("task %q enabled = %v, want %v", snap.Name, snap.Enabled, tc.want)
		}
	}
}

func TestTriggerZeroesActuatorsOncePerTrigger(t *testing.T) {
	reg, _, _, estop, acts := newEStopFixture(t)
	reg.Register("comm", PriorityNormal, 50, 45, func() {})

	estop.Trigger()
	estop.Trigger()
	estop.Trigger()

	if acts.zeros != 3 {
		t.Errorf("actuator zeroing invoked %d times, want once per trigger (3)", acts.zeros)
	}
}

func TestClearRestoresOnlyWhatTriggerDisabled(t *testing.T) {
	reg, _, s, estop, _ := newEStopFixture(t)

	comm, _ := reg.Register("comm", PriorityNormal, 50, 45, func() {})
	ui, _ := reg.Register("ui", PriorityLow, 200, 180, func() {})

	// ui was already off before the stop; clear must not resurrect it.
	s.Disable(ui)

	estop.Trigger()
	// Re-triggering while stopped must not clobber the remembered set.
	estop.Trigger()
	estop.Clear()

	if s.SafetyActive() {
		t.Fatal("safety flag still set after clear")
	}
	if snap, _ := s.Task(comm); !snap.Enabled {
		t.Errorf("comm not re-enabled by clear")
	}
	if snap, _ := s.Task(ui); snap.Enabled {
		t.Errorf("ui re-enabled by clear despite being disabled before the trigger")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	reg, _, s, estop, _ := newEStopFixture(t)
	comm, _ := reg.Register("comm", PriorityNormal, 50, 45, func() {})

	// Clearing while already Normal is a no-op.
	estop.Clear()
	if s.SafetyActive() {
		t.Fatal("clear on a Normal interlock set the safety flag")
	}
	if snap, _ := s.Task(comm); !snap.Enabled {
		t.Fatal("clear on a Normal interlock changed task state")
	}

	estop.Trigger()
	estop.Clear()
	before, _ := s.Task(comm)
	estop.Clear()
	after, _ := s.Task(comm)
	if before != after {
		t.Errorf("second clear changed the snapshot: %+v != %+v", before, after)
	}
}

func TestNoOutputAfterTriggerUntilClear(t *testing.T) {
	reg, clock, s, estop, _ := newEStopFixture(t)

	outputs := 0
	reg.Register("control", PriorityCritical, 10, 9, func() {
		if s.SafetyActive() {
			return
		}
		outputs++
	}, Critical(), Essential())

	for i := 0; i < 20; i++ {
		step(clock, s)
	}
	if outputs != 2 {
		t.Fatalf("outputs = %d before stop, want 2", outputs)
	}

	estop.Trigger()
	for i := 0; i < 50; i++ {
		step(clock, s)
	}
	if outputs != 2 {
		t.Errorf("task produced %d outputs while stopped, want none", outputs-2)
	}

	estop.Clear()
	for i := 0; i < 20; i++ {
		step(clock, s)
	}
	if outputs <= 2 {
		t.Errorf("no output resumed after clear")
	}
}
