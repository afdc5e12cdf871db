package sched

// TaskID is the stable slot index of a task in the registry.
type TaskID uint8

// Ticks counts system ticks. All scheduler bookkeeping is in tick units;
// conversion to wall time happens only at the telemetry boundary.
type Ticks uint64

// State is the lifecycle state of a task.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateWaiting
	StateSuspended
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Priority is an ordinal used only as a deadline tie-break; 0 is the most
// important. The primary ordering is always the absolute deadline.
type Priority uint8

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityIdle
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// TCB is the control block for one registered task. TCBs are created at
// registration and never destroyed; during steady state they are written
// only on the tick path, except for Enabled which the emergency-stop path
// may flip under the scheduler mutex.
type TCB struct {
	ID       TaskID
	Name     string
	Priority Priority

	// Timing contract, in ticks. Period 0 marks a non-periodic task.
	Period   Ticks
	Deadline Ticks // relative deadline, <= Period for periodic tasks

	// NextActivation is the absolute tick at which the task next becomes
	// eligible. Monotonically non-decreasing: advanced by exactly Period on
	// each completion, never reset backward.
	NextActivation Ticks

	// Accumulated statistics.
	LastStart      Ticks
	ExecutionTime  Ticks // most recent run
	WorstCaseTime  Ticks
	TotalRuntime   Ticks
	RunCount       uint64
	DeadlineMisses uint64

	// Work is the opaque task body. The scheduler invokes it and never
	// inspects it; bodies must be bounded and non-blocking, and must honor
	// the safety flag before producing actuator side effects.
	Work func()

	Enabled   bool
	Critical  bool // staleness-monitored by the watchdog supervisor
	Essential bool // stays enabled through an emergency stop
	Periodic  bool
	State     State

	queued bool // present in the ready tree
}

// resetStatistics zeroes the accumulated counters without touching the
// timing contract or the enabled bit.
func (t *TCB) resetStatistics() {
	t.LastStart = 0
	t.ExecutionTime = 0
	t.WorstCaseTime = 0
	t.TotalRuntime = 0
	t.RunCount = 0
	t.DeadlineMisses = 0
}
