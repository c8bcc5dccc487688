package beacon

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/user/pulsebeacon/broadcast"
	"github.com/user/pulsebeacon/gatt"
	"github.com/user/pulsebeacon/peripheral"
)

// inertScheduler keeps timers from firing on their own so tests can drive
// ticks deterministically through Engine.Tick
type inertScheduler struct{}

func (inertScheduler) Schedule(interval time.Duration, fn func()) broadcast.Task {
	return inertTask{}
}

type inertTask struct{}

func (inertTask) Stop() {}

func newRunningApp(t *testing.T) (*App, *peripheral.Simulator) {
	t.Helper()
	sim := peripheral.NewSimulator("SimTest")
	app := NewApp("PulseBeacon", sim, inertScheduler{})
	if err := app.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return app, sim
}

func TestStartBringsPeripheralUp(t *testing.T) {
	app, sim := newRunningApp(t)
	defer app.Stop()

	if !sim.IsAdvertising() {
		t.Fatal("Expected peripheral to be advertising after Start")
	}
	params := sim.Advertising()
	if params.LocalName != "PulseBeacon" {
		t.Errorf("Wrong advertised name: %q", params.LocalName)
	}
	if len(params.ServiceUUIDs) != 2 {
		t.Errorf("Expected 2 advertised services, got %v", params.ServiceUUIDs)
	}
}

func TestStartFailsWhenTransportFails(t *testing.T) {
	sim := peripheral.NewSimulator("SimTest")
	wantErr := errors.New("no adapter")
	sim.FailInitialization(wantErr)

	app := NewApp("PulseBeacon", sim, inertScheduler{})
	if err := app.Start(); !errors.Is(err, wantErr) {
		t.Fatalf("Expected transport failure to abort bring-up, got %v", err)
	}
}

func TestHeartbeatBroadcastFlow(t *testing.T) {
	app, sim := newRunningApp(t)
	defer app.Stop()

	alice := sim.AttachCentral("alice", "alice-phone")
	if err := sim.SimulateSubscribe("alice", HeartbeatCharUUID); err != nil {
		t.Fatalf("SimulateSubscribe failed: %v", err)
	}
	if !app.Engine().TimerActive(HeartbeatCharUUID) {
		t.Fatal("Heartbeat sender should start on first subscriber")
	}

	app.Engine().Tick(HeartbeatCharUUID)
	received := alice.Received()
	if len(received) != 1 {
		t.Fatalf("Expected 1 heartbeat, got %d", len(received))
	}
	frame := received[0].Value
	if len(frame) != 5 || frame[0] != 0xC2 {
		t.Fatalf("Malformed heartbeat frame: %v", frame)
	}
	if frame[2] != 0 {
		t.Errorf("Expected moving=0 initially, got %d", frame[2])
	}

	// A central command flips the flag for subsequent frames
	if status := sim.SimulateWrite("alice", CommandCharUUID, 0, []byte{CmdSetMoving, 1}); status != 0 {
		t.Fatalf("Command write rejected with status 0x%02X", status)
	}
	app.Engine().Tick(HeartbeatCharUUID)
	received = alice.Received()
	if frame := received[1].Value; frame[2] != 1 {
		t.Errorf("Expected moving=1 after command, got %d", frame[2])
	}

	if err := sim.SimulateUnsubscribe("alice", HeartbeatCharUUID); err != nil {
		t.Fatalf("SimulateUnsubscribe failed: %v", err)
	}
	if app.Engine().TimerActive(HeartbeatCharUUID) {
		t.Error("Heartbeat sender should stop on last unsubscribe")
	}
}

func TestPingGetsUnicastPong(t *testing.T) {
	app, sim := newRunningApp(t)
	defer app.Stop()

	// bob is connected but never subscribed; the pong is attempted anyway
	bob := sim.AttachCentral("bob", "bob-watch")
	if status := sim.SimulateWrite("bob", CommandCharUUID, 0, []byte{CmdPing}); status != 0 {
		t.Fatalf("Ping rejected with status 0x%02X", status)
	}

	received := bob.Received()
	if len(received) != 1 {
		t.Fatalf("Expected pong delivery, got %d message(s)", len(received))
	}
	if !gatt.EqualUUID(received[0].CharacteristicUUID, HeartbeatCharUUID) {
		t.Errorf("Pong on wrong characteristic: %s", received[0].CharacteristicUUID)
	}
	if !bytes.Equal(received[0].Value, []byte{0xC3, 0x01}) {
		t.Errorf("Unexpected pong frame: %v", received[0].Value)
	}
}

func TestCommandValidation(t *testing.T) {
	app, sim := newRunningApp(t)
	defer app.Stop()
	sim.AttachCentral("alice", "")

	tests := []struct {
		name       string
		charUUID   string
		value      []byte
		wantStatus uint8
	}{
		{"empty payload", CommandCharUUID, nil, gatt.ErrCodeInvalidAttributeValueLength},
		{"flag command too short", CommandCharUUID, []byte{CmdSetCharging}, gatt.ErrCodeInvalidAttributeValueLength},
		{"unknown opcode", CommandCharUUID, []byte{0x7F}, gatt.ErrCodeRequestNotSupported},
		{"set charging", CommandCharUUID, []byte{CmdSetCharging, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := sim.SimulateWrite("alice", tt.charUUID, 0, tt.value); status != tt.wantStatus {
				t.Errorf("Expected status 0x%02X, got 0x%02X", tt.wantStatus, status)
			}
		})
	}
}

func TestBatteryLevelRead(t *testing.T) {
	app, sim := newRunningApp(t)
	defer app.Stop()

	value, status := sim.SimulateRead("alice", BatteryLevelCharUUID, 0)
	if status != 0 || !bytes.Equal(value, []byte{100}) {
		t.Errorf("Expected battery read [100], got %v status 0x%02X", value, status)
	}

	// Command characteristic is write-only
	if _, status := sim.SimulateRead("alice", CommandCharUUID, 0); status == 0 {
		t.Error("Expected read of write-only characteristic to fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	app, sim := newRunningApp(t)

	app.Stop()
	app.Stop()

	if sim.IsAdvertising() {
		t.Error("Expected advertising stopped")
	}
}
