package sched

// systemMetrics is the process-wide aggregate, guarded by Scheduler.mu.
type systemMetrics struct {
	totalTicks       Ticks
	idleTicks        Ticks
	overheadTicks    Ticks
	maxResponseTicks Ticks
}

// MetricsSnapshot is a consistent copy of the system metrics, safe to hand
// to telemetry consumers without disturbing in-flight scheduling.
type MetricsSnapshot struct {
	TotalTicks        Ticks  `json:"total_ticks"`
	IdleTicks         Ticks  `json:"idle_ticks"`
	SchedulerOverhead Ticks  `json:"scheduler_overhead_ticks"`
	CPUUtilization    uint8  `json:"cpu_utilization_pct"`
	MaxResponseTicks  Ticks  `json:"max_response_ticks"`
	ActiveTasks       int    `json:"active_tasks"`
	SafetyActive      bool   `json:"safety_active"`
	DroppedEvents     uint64 `json:"dropped_events"`
}

// TaskSnapshot is a consistent copy of one TCB's contract and statistics.
type TaskSnapshot struct {
	ID             TaskID `json:"id"`
	Name           string `json:"name"`
	Priority       string `json:"priority"`
	State          string `json:"state"`
	Period         Ticks  `json:"period_ticks"`
	Deadline       Ticks  `json:"deadline_ticks"`
	NextActivation Ticks  `json:"next_activation"`
	LastStart      Ticks  `json:"last_start"`
	ExecutionTime  Ticks  `json:"execution_ticks"`
	WorstCaseTime  Ticks  `json:"worst_case_ticks"`
	TotalRuntime   Ticks  `json:"total_runtime_ticks"`
	RunCount       uint64 `json:"run_count"`
	DeadlineMisses uint64 `json:"deadline_misses"`
	Enabled        bool   `json:"enabled"`
	Critical       bool   `json:"critical"`
	Essential      bool   `json:"essential"`
}

func snapshotTCB(t *TCB) TaskSnapshot {
	return TaskSnapshot{
		ID:             t.ID,
		Name:           t.Name,
		Priority:       t.Priority.String(),
		State:          t.State.String(),
		Period:         t.Period,
		Deadline:       t.Deadline,
		NextActivation: t.NextActivation,
		LastStart:      t.LastStart,
		ExecutionTime:  t.ExecutionTime,
		WorstCaseTime:  t.WorstCaseTime,
		TotalRuntime:   t.TotalRuntime,
		RunCount:       t.RunCount,
		DeadlineMisses: t.DeadlineMisses,
		Enabled:        t.Enabled,
		Critical:       t.Critical,
		Essential:      t.Essential,
	}
}

// Metrics returns a consistent snapshot of the system metrics.
func (s *Scheduler) Metrics() MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, t := range s.reg.tasks {
		if t.Enabled {
			active++
		}
	}

	snap := MetricsSnapshot{
		TotalTicks:        s.metrics.totalTicks,
		IdleTicks:         s.metrics.idleTicks,
		SchedulerOverhead: s.metrics.overheadTicks,
		MaxResponseTicks:  s.metrics.maxResponseTicks,
		ActiveTasks:       active,
		SafetyActive:      s.safety.Load(),
		DroppedEvents:     s.dropped.Load(),
	}
	if s.metrics.totalTicks > 0 {
		snap.CPUUtilization = uint8(100 - (s.metrics.idleTicks*100)/s.metrics.totalTicks)
	}
	return snap
}

// Tasks returns snapshots of every registered task, in registry order.
func (s *Scheduler) Tasks() []TaskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskSnapshot, len(s.reg.tasks))
	for i, t := range s.reg.tasks {
		out[i] = snapshotTCB(t)
	}
	return out
}

// Task returns the snapshot of one task.
func (s *Scheduler) Task(id TaskID) (TaskSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.reg.task(id)
	if err != nil {
		return TaskSnapshot{}, err
	}
	return snapshotTCB(t), nil
}
