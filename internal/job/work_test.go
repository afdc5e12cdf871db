package job

import (
	"io"
	"log/slog"
	"testing"

	"tickedf/internal/hw"
	"tickedf/internal/sched"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeStatusFrame(t *testing.T) {
	f := EncodeStatusFrame(0x0F, 0x21, 0x0123, 0x0456, -2, 0x00C0, 87, true)

	if len(f) != 16 {
		t.Fatalf("frame length = %d, want 16", len(f))
	}
	if f[0] != 0xAA || f[1] != 0x55 {
		t.Errorf("header = %02X %02X, want AA 55", f[0], f[1])
	}
	if f[14] != 0xBB || f[15] != 0xCC {
		t.Errorf("footer = %02X %02X, want BB CC", f[14], f[15])
	}
	if f[4] != 0x01 || f[5] != 0x23 {
		t.Errorf("analog0 bytes = %02X %02X, want 01 23", f[4], f[5])
	}
	if f[12] != 0xFF {
		t.Errorf("estop byte = %02X, want FF", f[12])
	}

	var checksum byte
	for i := 2; i < 13; i++ {
		checksum ^= f[i]
	}
	if f[13] != checksum {
		t.Errorf("checksum = %02X, want %02X", f[13], checksum)
	}
}

func TestControlLoopDrivesOutput(t *testing.T) {
	ioState := hw.NewIOState()
	ioState.SetAnalog(0, 500)

	work := ControlLoop(ioState, 512, func() bool { return false })
	work()

	// error 12, gain /4
	if got := ioState.ControlOut(); got != 3 {
		t.Errorf("control out = %d, want 3", got)
	}
	if ioState.DigitalOut()&1 == 0 {
		t.Error("positive correction did not raise output bit 0")
	}

	ioState.SetAnalog(0, 600) // above setpoint: negative correction
	work()
	if got := ioState.ControlOut(); got != -22 {
		t.Errorf("control out = %d, want -22", got)
	}
	if ioState.DigitalOut()&1 != 0 {
		t.Error("negative correction left output bit 0 raised")
	}
}

func TestControlLoopHonorsSafetyFlag(t *testing.T) {
	ioState := hw.NewIOState()
	ioState.SetAnalog(0, 100)

	stopped := false
	work := ControlLoop(ioState, 512, func() bool { return stopped })

	stopped = true
	work()
	if ioState.ControlOut() != 0 || ioState.DigitalOut() != 0 {
		t.Error("control loop produced output while the safety flag was set")
	}
}

func TestSensorAcquisitionFiltersAndFlags(t *testing.T) {
	ioState := hw.NewIOState()
	values := [4]uint16{800, 500, 30, 512}
	work := SensorAcquisition(ioState, func(ch int) uint16 { return values[ch] })

	// After a full 8-sample window the average settles on the input.
	for i := 0; i < 8; i++ {
		work()
	}

	if got := ioState.Analog(0); got != 800 {
		t.Errorf("filtered ch0 = %d, want 800", got)
	}
	status := ioState.Status()
	if status&(1<<0) != 0 {
		t.Error("in-range ch0 flagged as faulty")
	}
	if status&(1<<2) == 0 {
		t.Error("out-of-range ch2 (30 < 50) not flagged")
	}
}

func TestCommunicationSnapshotsFrame(t *testing.T) {
	ioState := hw.NewIOState()
	ioState.SetDigitalIn(0x03)
	ioState.SetAnalog(0, 700)
	ioState.SetAnalog(1, 300)

	reg := sched.NewRegistry(2)
	s := sched.New(reg, &sched.ManualClock{}, testLogger())

	work := Communication(ioState, s)
	work()

	f := ioState.Frame()
	if len(f) != 16 {
		t.Fatalf("no frame stored")
	}
	if f[2] != 0x03 {
		t.Errorf("digital in byte = %02X, want 03", f[2])
	}
	if f[4] != byte(700>>8) || f[5] != byte(700&0xFF) {
		t.Errorf("analog0 bytes = %02X %02X", f[4], f[5])
	}
	if f[12] != 0x00 {
		t.Errorf("estop byte = %02X, want 00", f[12])
	}
}

func TestHeartbeatToggles(t *testing.T) {
	ioState := hw.NewIOState()
	work := Heartbeat(ioState, 5, func() bool { return false })

	work()
	if ioState.DigitalOut()&(1<<5) == 0 {
		t.Error("first beat did not raise the bit")
	}
	work()
	if ioState.DigitalOut()&(1<<5) != 0 {
		t.Error("second beat did not clear the bit")
	}
}
