package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned by Register once every slot is taken.
	ErrCapacityExceeded = errors.New("sched: task registry full")
	// ErrNoSuchTask is returned for a TaskID outside the registered range.
	ErrNoSuchTask = errors.New("sched: no such task")
)

// TaskOption tweaks a task at registration time.
type TaskOption func(*TCB)

// Critical marks a task for staleness monitoring by the watchdog supervisor.
func Critical() TaskOption {
	return func(t *TCB) { t.Critical = true }
}

// Essential marks a task to stay enabled through an emergency stop.
func Essential() TaskOption {
	return func(t *TCB) { t.Essential = true }
}

// OneShot marks a periodic slot as single-activation; it ends in
// StateCompleted after its first run instead of rescheduling.
func OneShot() TaskOption {
	return func(t *TCB) { t.Periodic = false }
}

// Registry is a fixed-capacity table of TCBs. It allocates its arena once;
// Register only hands out the pre-allocated slots. The registry itself is
// not synchronized: registration happens before the tick source is armed,
// and all later mutation goes through the Scheduler, under its mutex.
type Registry struct {
	tasks    []*TCB
	capacity int
	idle     TaskID
	hasIdle  bool
}

// NewRegistry creates a registry with exactly capacity slots.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{
		tasks:    make([]*TCB, 0, capacity),
		capacity: capacity,
	}
}

// Register adds a periodic task and returns its TaskID. The first
// activation is one period after start: NextActivation is initialized to
// the task's own period. Fails with ErrCapacityExceeded when full.
func (r *Registry) Register(name string, prio Priority, period, deadline Ticks, work func(), opts ...TaskOption) (TaskID, error) {
	if len(r.tasks) >= r.capacity {
		return 0, fmt.Errorf("register %q: %w", name, ErrCapacityExceeded)
	}
	if period == 0 {
		return 0, fmt.Errorf("register %q: period must be positive (use RegisterIdle for the background task)", name)
	}
	if deadline == 0 || deadline > period {
		deadline = period
	}
	t := &TCB{
		ID:             TaskID(len(r.tasks)),
		Name:           name,
		Priority:       prio,
		Period:         period,
		Deadline:       deadline,
		NextActivation: period,
		Work:           work,
		Enabled:        true,
		Periodic:       true,
		State:          StateWaiting,
	}
	for _, opt := range opts {
		opt(t)
	}
	r.tasks = append(r.tasks, t)
	return t.ID, nil
}

// RegisterIdle adds the designated non-periodic background task. The
// scheduler falls back to it whenever no periodic task is ready; it has no
// deadline bookkeeping. Registering a second idle task replaces the
// designation, not the slot.
func (r *Registry) RegisterIdle(name string, work func()) (TaskID, error) {
	if len(r.tasks) >= r.capacity {
		return 0, fmt.Errorf("register %q: %w", name, ErrCapacityExceeded)
	}
	t := &TCB{
		ID:        TaskID(len(r.tasks)),
		Name:      name,
		Priority:  PriorityIdle,
		Work:      work,
		Enabled:   true,
		Essential: true,
		State:     StateReady,
	}
	r.tasks = append(r.tasks, t)
	r.idle = t.ID
	r.hasIdle = true
	return t.ID, nil
}

// task returns the TCB for id, or ErrNoSuchTask.
func (r *Registry) task(id TaskID) (*TCB, error) {
	if int(id) >= len(r.tasks) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNoSuchTask)
	}
	return r.tasks[id], nil
}

// idleTask returns the designated idle TCB, if one was registered.
func (r *Registry) idleTask() (*TCB, bool) {
	if !r.hasIdle {
		return nil, false
	}
	return r.tasks[r.idle], true
}

// Len reports the number of registered tasks.
func (r *Registry) Len() int { return len(r.tasks) }

// Capacity reports the fixed slot count.
func (r *Registry) Capacity() int { return r.capacity }
