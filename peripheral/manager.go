package peripheral

import (
	"github.com/user/pulsebeacon/broadcast"
	"github.com/user/pulsebeacon/gatt"
)

// State of the underlying BLE stack
type State int

const (
	StateUnknown State = iota
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "poweredOff"
	case StatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// ManufacturerData is vendor-specific advertising payload. One major mobile
// platform family never exposes peripheral manufacturer data to scanners, so
// transports may silently drop it; callers must not rely on its visibility.
type ManufacturerData struct {
	CompanyID uint16
	Data      []byte
}

// AdvertisingParams configures what the peripheral advertises
type AdvertisingParams struct {
	ServiceUUIDs                   []string
	LocalName                      string
	ManufacturerData               *ManufacturerData
	ManufacturerDataInScanResponse bool
}

// ReadRequest is a central's read of a characteristic value
type ReadRequest struct {
	DeviceID           string
	CharacteristicUUID string
	Offset             int
}

// WriteRequest is a central's write to a characteristic value
type WriteRequest struct {
	DeviceID           string
	CharacteristicUUID string
	Offset             int
	Value              []byte
}

// Delegate receives the transport's inbound callbacks. SubscriptionChanged
// is the sole driver of broadcast-engine state; wiring it straight to
// broadcast.Engine.HandleSubscriptionChange is the intended hookup.
type Delegate interface {
	BleStateChanged(state State)
	AdvertisingStatusChanged(advertising bool, err error)
	SubscriptionChanged(change broadcast.SubscriptionChange)

	// ReadRequested returns the value to respond with and an ATT status
	// byte (0 = success). WriteRequested returns an ATT status byte.
	ReadRequested(req *ReadRequest) ([]byte, uint8)
	WriteRequested(req *WriteRequest) uint8
}

// Manager is the peripheral-side transport boundary. Implementations wrap a
// platform BLE stack; the rest of this module drives them identically.
//
// UpdateCharacteristic with an empty deviceID broadcasts to every central
// currently subscribed on the transport side; with a non-empty deviceID it
// unicasts, and an unknown device mapping is an error, not a silent drop.
type Manager interface {
	Initialize(delegate Delegate) error
	AddService(service *gatt.Service) error
	StartAdvertising(params AdvertisingParams) error
	StopAdvertising()
	UpdateCharacteristic(charUUID string, value []byte, deviceID string) error
}
