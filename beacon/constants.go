package beacon

import "github.com/user/pulsebeacon/gatt"

// Pulse BLE Service and Characteristic UUIDs
// These are the stable identifiers for the peripheral's GATT table
const (
	// Service UUID - the main Pulse service
	PulseServiceUUID = "F8A7B310-52C6-4E2D-8A41-0B9E7D3C6F21"

	// Characteristic UUIDs
	HeartbeatCharUUID = "F8A7B310-52C6-4E2D-8A41-0B9E7D3C6F22" // Periodic heartbeat frames
	CommandCharUUID   = "F8A7B310-52C6-4E2D-8A41-0B9E7D3C6F23" // Inbound commands from centrals
	SensorCharUUID    = "F8A7B310-52C6-4E2D-8A41-0B9E7D3C6F24" // Periodic sensor samples
)

// Standard Battery service, so stock BLE scanner apps can subscribe too
var (
	BatteryServiceUUID   = gatt.UUID16(0x180F)
	BatteryLevelCharUUID = gatt.UUID16(0x2A19)
)

// Command opcodes accepted on the command characteristic
const (
	CmdSetMoving    = 0x01 // [0x01, 0|1]
	CmdSetCharging  = 0x02 // [0x02, 0|1]
	CmdSetTimeValid = 0x03 // [0x03, 0|1]
	CmdPing         = 0x10 // [0x10] -> unicast pong on the heartbeat characteristic
)

// pongFrame is the unicast reply to CmdPing
var pongFrame = []byte{0xC3, 0x01}
