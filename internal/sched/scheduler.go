package sched

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// Scheduler runs one earliest-deadline-first decision per tick and streams
// state changes. It is non-preemptive: the selected task runs to completion
// before the next decision. A single mutex guards the registry, the ready
// tree and the metrics; the safety flag is a single-writer atomic so task
// bodies can poll it without taking the lock.
type Scheduler struct {
	mu      sync.Mutex // protects reg, rbt, metrics
	reg     *Registry
	clock   Clock
	rbt     *redblacktree.Tree // ready tasks ordered by absolute deadline
	metrics systemMetrics

	safety  atomic.Bool
	dropped atomic.Uint64

	statusCh chan StatusEvent
	logger   *slog.Logger

	csvFile   *os.File
	csvWriter *csv.Writer
}

// New creates a Scheduler over an already-populated registry. The clock is
// the sole time source; pass a TickClock for live operation or a
// ManualClock for deterministic stepping.
func New(reg *Registry, clock Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		reg:      reg,
		clock:    clock,
		rbt:      redblacktree.NewWith(cmp),
		statusCh: make(chan StatusEvent, 256), // buffered channel for status events
		logger:   logger.With("component", "scheduler"),
	}
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"timestamp", "tick", "event", "task_id", "exec_ticks"})
	w.Flush()
	s.csvFile = f
	s.csvWriter = w
	return nil
}

// StatusChannel exposes the event stream. Run consumes it; attach an
// external consumer only when not using Run.
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// DroppedEvents reports how many status events were discarded because the
// stream had no consumer keeping up. The tick path never blocks on it.
func (s *Scheduler) DroppedEvents() uint64 { return s.dropped.Load() }

// SafetyActive reports whether the emergency-stop safety flag is set. Task
// bodies must check this before producing actuator side effects.
func (s *Scheduler) SafetyActive() bool { return s.safety.Load() }

// Run drives the scheduler from its TickClock until ctx is cancelled,
// consuming and logging the event stream. It returns an error when the
// scheduler was constructed with a non-ticking clock.
func (s *Scheduler) Run(ctx context.Context) error {
	tc, ok := s.clock.(*TickClock)
	if !ok {
		return errors.New("sched: Run requires a TickClock time source")
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, open := <-tc.Ch:
				if !open {
					return
				}
				s.Tick()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if s.csvFile != nil {
				s.csvWriter.Flush()
				s.csvFile.Close()
			}
			return ctx.Err()
		case ev := <-s.statusCh:
			s.handleEvent(ev)
		}
	}
}

// Tick performs one scheduling decision: admit due tasks, select the one
// with the earliest absolute deadline, run it to completion, and update its
// statistics. With no ready task the designated idle task runs instead.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	now := s.clock.Now()
	s.metrics.totalTicks++

	// Admission: every enabled task whose activation time has arrived joins
	// the ready tree, keyed by its absolute deadline for this cycle. The
	// key stays valid while queued because NextActivation only moves on
	// completion.
	for _, t := range s.reg.tasks {
		if !t.Enabled || t.Period == 0 || t.queued || t.State == StateCompleted {
			continue
		}
		if t.NextActivation <= now {
			t.State = StateReady
			t.queued = true
			s.rbt.Put(edfKey{
				deadline: t.NextActivation + t.Deadline,
				prio:     t.Priority,
				id:       t.ID,
			}, t)
		}
	}

	// Selection: nearest deadline wins; tasks disabled while queued are
	// dropped here rather than hunted down at disable time.
	var selected *TCB
	for {
		node := s.rbt.Left()
		if node == nil {
			break
		}
		t := node.Value.(*TCB)
		s.rbt.Remove(node.Key)
		t.queued = false
		if !t.Enabled {
			t.State = StateSuspended
			continue
		}
		selected = t
		break
	}

	idle := selected == nil
	if idle {
		s.metrics.idleTicks++
		if it, ok := s.reg.idleTask(); ok && it.Enabled {
			selected = it
		}
	}
	if selected == nil {
		s.metrics.overheadTicks += s.clock.Now() - now
		s.mu.Unlock()
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusIdle})
		return
	}

	selected.State = StateRunning
	selected.LastStart = now
	s.metrics.overheadTicks += s.clock.Now() - now
	s.mu.Unlock() // NOTE: work runs outside the lock so bodies may call back into the scheduler

	if !idle {
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusDispatch, TaskID: selected.ID})
	}

	start := s.clock.Now()
	if selected.Work != nil {
		selected.Work()
	}
	elapsed := s.clock.Now() - start

	s.mu.Lock()
	t := selected
	t.ExecutionTime = elapsed
	t.TotalRuntime += elapsed
	t.RunCount++
	if elapsed > t.WorstCaseTime {
		t.WorstCaseTime = elapsed
	}
	if elapsed > s.metrics.maxResponseTicks {
		s.metrics.maxResponseTicks = elapsed
	}

	missed := false
	if t.Period > 0 {
		// A miss is recorded, not fatal: the work already ran. The next
		// activation advances by exactly one period either way, trading a
		// bounded amount of future lateness against catch-up backlog.
		if elapsed > t.Deadline {
			t.DeadlineMisses++
			missed = true
		}
		if t.Periodic {
			t.NextActivation += t.Period
			t.State = StateWaiting
		} else {
			t.State = StateCompleted
		}
	} else {
		t.State = StateReady
	}
	s.mu.Unlock()

	if idle {
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusIdle, TaskID: t.ID, ExecTicks: elapsed})
		return
	}
	s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusComplete, TaskID: t.ID, ExecTicks: elapsed})
	if missed {
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusDeadlineMiss, TaskID: t.ID, ExecTicks: elapsed})
	}
}

// Enable marks a task runnable again. Enabling an already-enabled task is a
// no-op; statistics are untouched either way.
func (s *Scheduler) Enable(id TaskID) error {
	s.mu.Lock()
	t, err := s.reg.task(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := !t.Enabled
	t.Enabled = true
	if changed && t.State == StateSuspended {
		t.State = StateWaiting
	}
	now := s.clock.Now()
	s.mu.Unlock()

	if changed {
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusTaskEnabled, TaskID: id})
	}
	return nil
}

// Disable takes a task out of scheduling without touching its statistics.
// Disabling an already-disabled task is a no-op.
func (s *Scheduler) Disable(id TaskID) error {
	s.mu.Lock()
	t, err := s.reg.task(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := t.Enabled
	t.Enabled = false
	if changed && t.State != StateRunning {
		t.State = StateSuspended
	}
	now := s.clock.Now()
	s.mu.Unlock()

	if changed {
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusTaskDisabled, TaskID: id})
	}
	return nil
}

// ResetStatistics zeroes a task's accumulated counters; the timing contract
// and the enabled bit are untouched.
func (s *Scheduler) ResetStatistics(id TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.reg.task(id)
	if err != nil {
		return err
	}
	t.resetStatistics()
	return nil
}

// emit never blocks: an event that cannot be delivered is counted and
// dropped, keeping the tick path free of back-pressure.
func (s *Scheduler) emit(ev StatusEvent) {
	select {
	case s.statusCh <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Scheduler) handleEvent(ev StatusEvent) {
	switch ev.Kind {
	case StatusDeadlineMiss:
		s.logger.Warn("deadline miss", "task", ev.TaskID, "tick", ev.Tick, "exec_ticks", ev.ExecTicks)
	case StatusEStopTriggered:
		s.logger.Warn("emergency stop triggered", "tick", ev.Tick)
	case StatusEStopCleared:
		s.logger.Info("emergency stop cleared", "tick", ev.Tick)
	case StatusWatchdogWithheld:
		s.logger.Warn("watchdog service withheld", "tick", ev.Tick)
	case StatusShed:
		s.logger.Warn("load shedding engaged", "tick", ev.Tick)
	case StatusRestore:
		s.logger.Info("load shedding released", "tick", ev.Tick)
	case StatusTaskEnabled, StatusTaskDisabled:
		s.logger.Info(ev.Kind.String(), "task", ev.TaskID, "tick", ev.Tick)
	default:
		s.logger.Debug(ev.Kind.String(), "task", ev.TaskID, "tick", ev.Tick, "exec_ticks", ev.ExecTicks)
	}

	// CSV output
	if s.csvWriter != nil {
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatUint(uint64(ev.Tick), 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			strconv.FormatUint(uint64(ev.ExecTicks), 10),
		}
		s.csvWriter.Write(rec)
		s.csvWriter.Flush()
	}
}

// edfKey orders the ready tree: nearest absolute deadline first, ties
// broken by the priority ordinal, then by TaskID. The final identity
// tie-break makes selection reproducible across runs.
type edfKey struct {
	deadline Ticks
	prio     Priority
	id       TaskID
}

func cmp(a, b any) int {
	ka, kb := a.(edfKey), b.(edfKey)
	switch {
	case ka.deadline < kb.deadline:
		return -1
	case ka.deadline > kb.deadline:
		return 1
	case ka.prio < kb.prio:
		return -1
	case ka.prio > kb.prio:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}
