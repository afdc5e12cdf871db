// Package hw models the hardware collaborators the scheduler core is
// specified against: the watchdog timer, the actuator bank, and the shared
// I/O shadow state that task bodies read and write. Real register-level
// I/O lives behind these types; the simulated implementations here count
// interactions so tests and the demo can observe them.
package hw

import (
	"sync"
	"time"
)

// IOState is the controller's I/O shadow: analog inputs, digital
// input/output lines, the control output, and the system status word. It
// is written from the tick path and from the asynchronous emergency-stop
// path, so every access goes through its mutex.
type IOState struct {
	mu         sync.Mutex
	analog     [4]uint16
	digitalIn  uint8
	digitalOut uint8
	controlOut int16
	status     uint16
	frame      []byte
	zeroCalls  uint64
}

// NewIOState returns an I/O shadow with all lines at rest.
func NewIOState() *IOState {
	return &IOState{frame: make([]byte, 0, 16)}
}

// SetAnalog stores a sampled analog value for a channel (0..3).
func (io *IOState) SetAnalog(ch int, v uint16) {
	io.mu.Lock()
	defer io.mu.Unlock()
	if ch >= 0 && ch < len(io.analog) {
		io.analog[ch] = v
	}
}

// Analog returns the current value of an analog channel.
func (io *IOState) Analog(ch int) uint16 {
	io.mu.Lock()
	defer io.mu.Unlock()
	if ch < 0 || ch >= len(io.analog) {
		return 0
	}
	return io.analog[ch]
}

// SetDigitalIn updates the digital input lines.
func (io *IOState) SetDigitalIn(v uint8) {
	io.mu.Lock()
	io.digitalIn = v
	io.mu.Unlock()
}

// DigitalIn returns the digital input lines.
func (io *IOState) DigitalIn() uint8 {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.digitalIn
}

// SetDigitalOut drives the digital output lines.
func (io *IOState) SetDigitalOut(v uint8) {
	io.mu.Lock()
	io.digitalOut = v
	io.mu.Unlock()
}

// DigitalOut returns the digital output lines.
func (io *IOState) DigitalOut() uint8 {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.digitalOut
}

// SetControlOut drives the control output.
func (io *IOState) SetControlOut(v int16) {
	io.mu.Lock()
	io.controlOut = v
	io.mu.Unlock()
}

// ControlOut returns the control output.
func (io *IOState) ControlOut() int16 {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.controlOut
}

// SetStatusBit sets or clears one bit of the system status word.
func (io *IOState) SetStatusBit(bit uint, on bool) {
	io.mu.Lock()
	defer io.mu.Unlock()
	if on {
		io.status |= 1 << bit
	} else {
		io.status &^= 1 << bit
	}
}

// Status returns the system status word.
func (io *IOState) Status() uint16 {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.status
}

// StoreFrame keeps the most recent outbound status frame for inspection.
func (io *IOState) StoreFrame(f []byte) {
	io.mu.Lock()
	io.frame = append(io.frame[:0], f...)
	io.mu.Unlock()
}

// Frame returns a copy of the most recent outbound status frame.
func (io *IOState) Frame() []byte {
	io.mu.Lock()
	defer io.mu.Unlock()
	out := make([]byte, len(io.frame))
	copy(out, io.frame)
	return out
}

// Zero forces all actuator-affecting outputs to their defined-safe value.
// It satisfies the scheduler's Actuators interface and is the primitive the
// emergency-stop monitor invokes.
func (io *IOState) Zero() {
	io.mu.Lock()
	io.digitalOut = 0
	io.controlOut = 0
	io.zeroCalls++
	io.mu.Unlock()
}

// ZeroCalls reports how many times Zero was invoked.
func (io *IOState) ZeroCalls() uint64 {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.zeroCalls
}

// SimWatchdog is a simulated hardware watchdog. It records services and
// reports whether the service interval was ever exceeded; a real deployment
// replaces it with the platform's wdt_reset-style primitive.
type SimWatchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	services uint64
	last     time.Time
	expired  bool
}

// NewSimWatchdog creates a watchdog that expects a service at least every
// timeout.
func NewSimWatchdog(timeout time.Duration) *SimWatchdog {
	return &SimWatchdog{timeout: timeout, last: time.Now()}
}

// Service resets the watchdog interval. Satisfies the scheduler's
// WatchdogTimer interface.
func (w *SimWatchdog) Service() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if w.timeout > 0 && now.Sub(w.last) > w.timeout {
		w.expired = true
	}
	w.last = now
	w.services++
}

// Services reports how many times the watchdog was serviced.
func (w *SimWatchdog) Services() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.services
}

// Expired reports whether any service interval exceeded the timeout.
func (w *SimWatchdog) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}
