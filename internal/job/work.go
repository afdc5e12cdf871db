// Package job holds the application task bodies for the demo controller.
// The scheduler treats these as opaque work; each body is bounded,
// non-blocking, and checks the safety flag before touching outputs.
package job

import (
	"log/slog"
	"time"

	"tickedf/internal/hw"
	"tickedf/internal/sched"
)

// ControlLoop returns the high-rate control body: a proportional regulator
// driving the control output from analog channel 0 toward setpoint. While
// the safety flag is set it produces no output at all.
func ControlLoop(io *hw.IOState, setpoint uint16, safety func() bool) func() {
	return func() {
		if safety() {
			return
		}
		sensor := io.Analog(0)
		err := int16(setpoint) - int16(sensor)
		out := err / 4 // proportional gain
		io.SetControlOut(out)

		dout := io.DigitalOut()
		if out > 0 {
			dout |= 1 << 0
		} else {
			dout &^= 1 << 0
		}
		io.SetDigitalOut(dout)
	}
}

// SensorAcquisition returns the sampling body: it pulls raw values from
// sample, smooths each channel with an 8-point moving average, publishes
// the filtered values, and raises a status fault bit for any channel
// outside the plausible range.
func SensorAcquisition(io *hw.IOState, sample func(ch int) uint16) func() {
	var (
		buf [4][8]uint16
		sum [4]uint32
		idx int
	)
	return func() {
		for ch := 0; ch < 4; ch++ {
			raw := sample(ch)
			sum[ch] -= uint32(buf[ch][idx])
			buf[ch][idx] = raw
			sum[ch] += uint32(raw)

			filtered := uint16(sum[ch] / 8)
			io.SetAnalog(ch, filtered)
			io.SetStatusBit(uint(ch), filtered < 50 || filtered > 1000)
		}
		idx = (idx + 1) % 8
	}
}

// frame delimiters of the status protocol.
const (
	frameHeader0 = 0xAA
	frameHeader1 = 0x55
	frameFooter0 = 0xBB
	frameFooter1 = 0xCC
)

// EncodeStatusFrame builds the fixed 16-byte status frame: header, I/O and
// metrics payload, XOR checksum over the payload, footer.
func EncodeStatusFrame(digIn, digOut uint8, a0, a1 uint16, ctrl int16, status uint16, util uint8, estop bool) []byte {
	f := make([]byte, 16)
	f[0] = frameHeader0
	f[1] = frameHeader1
	f[2] = digIn
	f[3] = digOut
	f[4] = byte(a0 >> 8)
	f[5] = byte(a0)
	f[6] = byte(a1 >> 8)
	f[7] = byte(a1)
	f[8] = byte(uint16(ctrl) >> 8)
	f[9] = byte(uint16(ctrl))
	f[10] = byte(status)
	f[11] = util
	if estop {
		f[12] = 0xFF
	}

	var checksum byte
	for i := 2; i < 13; i++ {
		checksum ^= f[i]
	}
	f[13] = checksum
	f[14] = frameFooter0
	f[15] = frameFooter1
	return f
}

// Communication returns the framing body: it snapshots the I/O shadow and
// the system metrics into a status frame. Transmission over a real link is
// a platform concern; the latest frame stays inspectable on the I/O state.
func Communication(io *hw.IOState, s *sched.Scheduler) func() {
	return func() {
		m := s.Metrics()
		f := EncodeStatusFrame(
			io.DigitalIn(), io.DigitalOut(),
			io.Analog(0), io.Analog(1),
			io.ControlOut(), io.Status(),
			m.CPUUtilization, m.SafetyActive,
		)
		io.StoreFrame(f)
	}
}

// status word bits used by the monitor body.
const (
	StatusBitHealthy = 14
	StatusBitFault   = 15
)

// SystemMonitor returns the health body: it reflects deadline misses and
// CPU overload into the healthy/fault status bits.
func SystemMonitor(io *hw.IOState, s *sched.Scheduler) func() {
	return func() {
		m := s.Metrics()
		healthy := m.CPUUtilization <= 80
		if healthy {
			for _, t := range s.Tasks() {
				if t.Period > 0 && t.DeadlineMisses > 0 {
					healthy = false
					break
				}
			}
		}
		io.SetStatusBit(StatusBitHealthy, healthy)
		io.SetStatusBit(StatusBitFault, !healthy)
	}
}

// Heartbeat returns the UI body: it toggles one output line per run so an
// operator can see the system breathing. Silent while the safety flag is
// set.
func Heartbeat(io *hw.IOState, bit uint, safety func() bool) func() {
	on := false
	return func() {
		if safety() {
			return
		}
		on = !on
		dout := io.DigitalOut()
		if on {
			dout |= 1 << bit
		} else {
			dout &^= 1 << bit
		}
		io.SetDigitalOut(dout)
	}
}

// Diagnostic returns the slow analysis body: it warns about tasks whose
// average runtime has crept past 80% of their relative deadline, the early
// signal that misses are coming.
func Diagnostic(s *sched.Scheduler, logger *slog.Logger) func() {
	logger = logger.With("component", "diagnostic")
	return func() {
		for _, t := range s.Tasks() {
			if t.Period == 0 || t.RunCount == 0 {
				continue
			}
			avg := t.TotalRuntime / sched.Ticks(t.RunCount)
			if avg > t.Deadline*80/100 {
				logger.Warn("task averaging near its deadline",
					"task", t.Name, "avg_ticks", avg, "deadline_ticks", t.Deadline)
			}
		}
	}
}

// BusyWork returns a body that burns roughly d of wall time, for load
// experiments against a live TickClock.
func BusyWork(d time.Duration) func() {
	return func() {
		end := time.Now().Add(d)
		for time.Now().Before(end) {
		}
	}
}

// SimulatedWork returns a body that consumes exactly n ticks on a manual
// clock, for deterministic timing experiments.
func SimulatedWork(clock *sched.ManualClock, n sched.Ticks) func() {
	return func() {
		clock.Advance(n)
	}
}
