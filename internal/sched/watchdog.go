package sched

import "time"

// WatchdogTimer is the external hardware watchdog's service primitive.
// Withholding Service long enough forces a platform reset, the designed
// last-resort recovery from a scheduler lockup.
type WatchdogTimer interface {
	Service()
}

// WatchdogSupervisor gates the hardware watchdog on scheduling health. Its
// Check method is registered as an ordinary periodic task; it is not wired
// into the tick path itself, so a locked-up scheduler starves it and the
// platform reset fires.
type WatchdogSupervisor struct {
	s      *Scheduler
	wd     WatchdogTimer
	factor Ticks // staleness window as a multiple of each task's period
}

// NewWatchdogSupervisor creates a supervisor with the given staleness
// factor; a factor below 1 falls back to 2, the conventional window.
func NewWatchdogSupervisor(s *Scheduler, wd WatchdogTimer, factor Ticks) *WatchdogSupervisor {
	if factor < 1 {
		factor = 2
	}
	return &WatchdogSupervisor{s: s, wd: wd, factor: factor}
}

// Check services the watchdog iff every enabled critical task has started a
// run within its staleness window and the safety flag is clear. Any stale
// critical task, or an active emergency stop, withholds the service.
func (w *WatchdogSupervisor) Check() {
	s := w.s
	s.mu.Lock()
	now := s.clock.Now()
	healthy := true
	for _, t := range s.reg.tasks {
		if !t.Enabled || !t.Critical {
			continue
		}
		if now-t.LastStart > t.Period*w.factor {
			healthy = false
			break
		}
	}
	s.mu.Unlock()

	if healthy && !s.safety.Load() {
		w.wd.Service()
		s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusWatchdogServiced})
		return
	}
	s.emit(StatusEvent{Time: time.Now(), Tick: now, Kind: StatusWatchdogWithheld})
}
