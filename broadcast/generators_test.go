package broadcast

import (
	"encoding/binary"
	"testing"
)

func TestBatteryLevelWrapsAround(t *testing.T) {
	generate := BatteryLevel()

	// 100, 99, ..., 0, then back to 100
	for i := 0; i <= 100; i++ {
		want := byte(100 - i)
		got := generate()
		if len(got) != 1 || got[0] != want {
			t.Fatalf("Tick %d: expected [%d], got %v", i, want, got)
		}
	}
	if got := generate(); got[0] != 100 {
		t.Errorf("Expected wraparound to 100, got %d", got[0])
	}
	if got := generate(); got[0] != 99 {
		t.Errorf("Expected 99 after wraparound, got %d", got[0])
	}
}

func TestHeartbeatFrameFormat(t *testing.T) {
	state := &HeartbeatState{}
	generate := Heartbeat(state)

	frame := generate()
	if len(frame) != 5 {
		t.Fatalf("Expected 5-byte frame, got %d bytes", len(frame))
	}
	if frame[0] != 0xC2 {
		t.Errorf("Expected opcode 0xC2, got 0x%02X", frame[0])
	}
	if frame[1] != 100 {
		t.Errorf("Expected initial battery 100, got %d", frame[1])
	}
	for i := 2; i <= 4; i++ {
		if frame[i] != 0 {
			t.Errorf("Expected flag byte %d to start at 0, got %d", i, frame[i])
		}
	}

	state.SetMoving(true)
	state.SetCharging(true)
	state.SetTimeValid(true)
	frame = generate()
	if frame[1] != 99 {
		t.Errorf("Expected battery to decrement to 99, got %d", frame[1])
	}
	if frame[2] != 1 || frame[3] != 1 || frame[4] != 1 {
		t.Errorf("Expected all flags set, got %v", frame[2:])
	}

	state.SetMoving(false)
	frame = generate()
	if frame[2] != 0 || frame[3] != 1 {
		t.Errorf("Expected moving=0 charging=1, got %v", frame[2:])
	}
}

func TestMonotonicTimestampAdvances(t *testing.T) {
	generate := MonotonicTimestamp(1000, 250)

	for i, want := range []uint64{1000, 1250, 1500, 1750} {
		frame := generate()
		if len(frame) != 8 {
			t.Fatalf("Expected 8-byte frame, got %d", len(frame))
		}
		if got := binary.LittleEndian.Uint64(frame); got != want {
			t.Errorf("Tick %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestSensorRampWraps(t *testing.T) {
	generate := SensorRamp(400, 1000)

	for i, want := range []uint16{0, 400, 800, 0, 400} {
		frame := generate()
		if got := binary.LittleEndian.Uint16(frame); got != want {
			t.Errorf("Tick %d: expected %d, got %d", i, want, got)
		}
	}
}
