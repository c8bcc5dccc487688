package broadcast

import (
	"encoding/binary"
	"sync"
)

// Payload generators are channel-local and deterministic given their prior
// internal state, so they are testable without any transport. Generators
// returned here are closures; the engine serializes calls, so they carry no
// locking unless shared with application code (see HeartbeatState).

// BatteryLevel returns a generator producing a 1-byte battery percentage
// that starts at 100, decrements by 1 per tick, and wraps back to 100 after
// reaching 0.
func BatteryLevel() PayloadFunc {
	level := 100
	return func() []byte {
		payload := []byte{byte(level)}
		if level == 0 {
			level = 100
		} else {
			level--
		}
		return payload
	}
}

// heartbeatOpcode tags heartbeat frames on the wire
const heartbeatOpcode = 0xC2

// HeartbeatState holds the device flags carried in heartbeat frames.
// Application code mutates it from its own goroutines while the engine's
// generator reads it per tick.
type HeartbeatState struct {
	mu        sync.RWMutex
	moving    bool
	charging  bool
	timeValid bool
}

// SetMoving updates the motion flag
func (h *HeartbeatState) SetMoving(moving bool) {
	h.mu.Lock()
	h.moving = moving
	h.mu.Unlock()
}

// SetCharging updates the charging flag
func (h *HeartbeatState) SetCharging(charging bool) {
	h.mu.Lock()
	h.charging = charging
	h.mu.Unlock()
}

// SetTimeValid updates the time-synchronized flag
func (h *HeartbeatState) SetTimeValid(valid bool) {
	h.mu.Lock()
	h.timeValid = valid
	h.mu.Unlock()
}

func (h *HeartbeatState) snapshot() (moving, charging, timeValid bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.moving, h.charging, h.timeValid
}

// Heartbeat returns a generator producing the 5-byte heartbeat frame:
//
//	[0xC2, batteryPercent(0-100), isMoving(0|1), isCharging(0|1), timeValid(0|1)]
//
// The battery byte follows the BatteryLevel wraparound sequence.
func Heartbeat(state *HeartbeatState) PayloadFunc {
	battery := BatteryLevel()
	return func() []byte {
		moving, charging, timeValid := state.snapshot()
		return []byte{
			heartbeatOpcode,
			battery()[0],
			boolByte(moving),
			boolByte(charging),
			boolByte(timeValid),
		}
	}
}

// MonotonicTimestamp returns a generator producing an 8-byte little-endian
// millisecond counter that starts at start and advances stepMillis per tick.
// Deterministic: no wall clock involved.
func MonotonicTimestamp(start, stepMillis uint64) PayloadFunc {
	current := start
	return func() []byte {
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, current)
		current += stepMillis
		return payload
	}
}

// SensorRamp returns a generator producing a 2-byte little-endian
// measurement ramping from 0 by step per tick, wrapping at max.
func SensorRamp(step, max uint16) PayloadFunc {
	var current uint16
	return func() []byte {
		payload := make([]byte, 2)
		binary.LittleEndian.PutUint16(payload, current)
		current += step
		if current > max {
			current = 0
		}
		return payload
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
