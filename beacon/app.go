// Package beacon is the worked peripheral application: it registers the
// Pulse and Battery services, runs the subscription-gated broadcast engine
// over a peripheral transport, and answers central commands.
package beacon

import (
	"fmt"
	"time"

	"github.com/user/pulsebeacon/broadcast"
	"github.com/user/pulsebeacon/gatt"
	"github.com/user/pulsebeacon/logger"
	"github.com/user/pulsebeacon/peripheral"
)

// Broadcast intervals per characteristic
const (
	HeartbeatInterval = 1 * time.Second
	BatteryInterval   = 5 * time.Second
	SensorInterval    = 500 * time.Millisecond
)

// App wires a peripheral transport to the broadcast engine and implements
// the transport's delegate callbacks.
type App struct {
	name      string
	manager   peripheral.Manager
	engine    *broadcast.Engine
	heartbeat *broadcast.HeartbeatState
	services  []*gatt.Service
}

// NewApp creates the application around a transport. A nil scheduler selects
// the production ticker scheduler.
func NewApp(name string, manager peripheral.Manager, scheduler broadcast.Scheduler) *App {
	app := &App{
		name:      name,
		manager:   manager,
		heartbeat: &broadcast.HeartbeatState{},
	}
	app.engine = broadcast.NewEngine(manager, scheduler)
	return app
}

// Engine exposes the broadcast engine for observers (monitor hub, tests)
func (a *App) Engine() *broadcast.Engine {
	return a.engine
}

// Heartbeat exposes the mutable heartbeat flags
func (a *App) Heartbeat() *broadcast.HeartbeatState {
	return a.heartbeat
}

// Start brings the peripheral up: initialize the transport, register
// services and their broadcast channels, start advertising. Any failure here
// aborts bring-up and propagates.
func (a *App) Start() error {
	if err := a.manager.Initialize(a); err != nil {
		return fmt.Errorf("initialize transport: %w", err)
	}

	a.services = []*gatt.Service{
		{
			UUID:    PulseServiceUUID,
			Primary: true,
			Characteristics: []*gatt.Characteristic{
				{
					UUID:       HeartbeatCharUUID,
					Properties: gatt.PropertyNotify,
				},
				{
					UUID:        CommandCharUUID,
					Properties:  gatt.PropertyWrite | gatt.PropertyWriteWithoutResponse,
					Permissions: gatt.PermissionWriteable,
				},
				{
					UUID:       SensorCharUUID,
					Properties: gatt.PropertyNotify,
				},
			},
		},
		{
			UUID:    BatteryServiceUUID,
			Primary: true,
			Characteristics: []*gatt.Characteristic{
				{
					UUID:        BatteryLevelCharUUID,
					Properties:  gatt.PropertyRead | gatt.PropertyNotify,
					Permissions: gatt.PermissionReadable,
					Value:       []byte{100},
				},
			},
		},
	}

	channels := []struct {
		uuid     string
		interval time.Duration
		generate broadcast.PayloadFunc
	}{
		{HeartbeatCharUUID, HeartbeatInterval, broadcast.Heartbeat(a.heartbeat)},
		{BatteryLevelCharUUID, BatteryInterval, broadcast.BatteryLevel()},
		{SensorCharUUID, SensorInterval, broadcast.SensorRamp(25, 1000)},
	}
	for _, ch := range channels {
		if err := a.engine.RegisterChannel(ch.uuid, ch.interval, ch.generate); err != nil {
			return fmt.Errorf("register channel: %w", err)
		}
	}

	for _, service := range a.services {
		if err := a.manager.AddService(service); err != nil {
			return fmt.Errorf("add service: %w", err)
		}
	}

	params := peripheral.AdvertisingParams{
		ServiceUUIDs: []string{PulseServiceUUID, BatteryServiceUUID},
		LocalName:    a.name,
		ManufacturerData: &peripheral.ManufacturerData{
			CompanyID: 0xFFFF, // test/unassigned company identifier
			Data:      []byte{0x01},
		},
		ManufacturerDataInScanResponse: true,
	}
	if err := a.manager.StartAdvertising(params); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	return nil
}

// Stop tears the peripheral down. Safe to call more than once.
func (a *App) Stop() {
	a.manager.StopAdvertising()
	a.engine.Shutdown()
}

// BleStateChanged implements peripheral.Delegate
func (a *App) BleStateChanged(state peripheral.State) {
	logger.Info(a.name, "BLE state: %s", state)
}

// AdvertisingStatusChanged implements peripheral.Delegate
func (a *App) AdvertisingStatusChanged(advertising bool, err error) {
	if err != nil {
		logger.Error(a.name, "Advertising failed: %v", err)
		return
	}
	logger.Info(a.name, "Advertising: %v", advertising)
}

// SubscriptionChanged feeds the engine; this is the only path that mutates
// subscriber state
func (a *App) SubscriptionChanged(change broadcast.SubscriptionChange) {
	a.engine.HandleSubscriptionChange(change)
}

// ReadRequested serves characteristic reads from the registered values
func (a *App) ReadRequested(req *peripheral.ReadRequest) ([]byte, uint8) {
	for _, service := range a.services {
		if char := service.FindCharacteristic(req.CharacteristicUUID); char != nil {
			if char.Permissions&gatt.PermissionReadable == 0 {
				return nil, gatt.ErrCodeRequestNotSupported
			}
			if req.Offset > len(char.Value) {
				return nil, gatt.ErrCodeInvalidOffset
			}
			return char.Value[req.Offset:], 0
		}
	}
	return nil, gatt.ErrCodeAttributeNotFound
}

// WriteRequested handles central commands on the command characteristic
func (a *App) WriteRequested(req *peripheral.WriteRequest) uint8 {
	if !gatt.EqualUUID(req.CharacteristicUUID, CommandCharUUID) {
		return gatt.ErrCodeWriteNotPermitted
	}
	if len(req.Value) == 0 {
		return gatt.ErrCodeInvalidAttributeValueLength
	}

	opcode := req.Value[0]
	switch opcode {
	case CmdSetMoving, CmdSetCharging, CmdSetTimeValid:
		if len(req.Value) != 2 {
			return gatt.ErrCodeInvalidAttributeValueLength
		}
		flag := req.Value[1] != 0
		switch opcode {
		case CmdSetMoving:
			a.heartbeat.SetMoving(flag)
		case CmdSetCharging:
			a.heartbeat.SetCharging(flag)
		case CmdSetTimeValid:
			a.heartbeat.SetTimeValid(flag)
		}
		logger.Debug(a.name, "Command 0x%02X from %s: flag=%v", opcode, req.DeviceID, flag)
		return 0
	case CmdPing:
		// Reply out of band; a pong to a central that never subscribed is
		// still attempted, and the transport's verdict is only logged.
		if err := a.engine.SendUnicast(HeartbeatCharUUID, req.DeviceID, pongFrame); err != nil {
			logger.Warn(a.name, "Pong to %s failed: %v", req.DeviceID, err)
		}
		return 0
	default:
		logger.Warn(a.name, "Unknown command 0x%02X from %s", opcode, req.DeviceID)
		return gatt.ErrCodeRequestNotSupported
	}
}
