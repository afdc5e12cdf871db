package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusDispatch
	StatusComplete
	StatusDeadlineMiss
	StatusTaskEnabled
	StatusTaskDisabled
	StatusEStopTriggered
	StatusEStopCleared
	StatusWatchdogServiced
	StatusWatchdogWithheld
	StatusShed
	StatusRestore
)

// StatusEvent is emitted on scheduling decisions and safety transitions.
type StatusEvent struct {
	Time      time.Time
	Tick      Ticks
	Kind      StatusKind
	TaskID    TaskID
	ExecTicks Ticks
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusDispatch:
		return "Dispatch"
	case StatusComplete:
		return "Complete"
	case StatusDeadlineMiss:
		return "DeadlineMiss"
	case StatusTaskEnabled:
		return "TaskEnabled"
	case StatusTaskDisabled:
		return "TaskDisabled"
	case StatusEStopTriggered:
		return "EStopTriggered"
	case StatusEStopCleared:
		return "EStopCleared"
	case StatusWatchdogServiced:
		return "WatchdogServiced"
	case StatusWatchdogWithheld:
		return "WatchdogWithheld"
	case StatusShed:
		return "Shed"
	case StatusRestore:
		return "Restore"
	default:
		return "Unknown"
	}
}
