package peripheral

import (
	"fmt"
	"sort"
	"sync"

	"github.com/user/pulsebeacon/broadcast"
	"github.com/user/pulsebeacon/gatt"
	"github.com/user/pulsebeacon/logger"
)

// Notification is one delivered characteristic update, as seen by a
// simulated central
type Notification struct {
	CharacteristicUUID string
	Value              []byte
}

// SimulatedCentral stands in for a remote central device connected to the
// Simulator
type SimulatedCentral struct {
	ID   string
	Name string

	mu       sync.Mutex
	received []Notification
}

// Received returns a copy of every notification delivered to this central
func (c *SimulatedCentral) Received() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.received))
	copy(out, c.received)
	return out
}

func (c *SimulatedCentral) deliver(charUUID string, value []byte) {
	body := make([]byte, len(value))
	copy(body, value)
	c.mu.Lock()
	c.received = append(c.received, Notification{CharacteristicUUID: charUUID, Value: body})
	c.mu.Unlock()
}

// Simulator is an in-memory Manager implementation. It mimics the observable
// behavior of a platform peripheral stack (power-on gating, no service
// changes while advertising, per-characteristic subscriber tracking,
// unknown-device rejection) so the engine and applications run unchanged
// without a radio. Tests and demos drive centrals through the Simulate*
// methods.
type Simulator struct {
	mu sync.Mutex

	name      string
	delegate  Delegate
	state     State
	services  []*gatt.Service
	adv       *AdvertisingParams
	centrals  map[string]*SimulatedCentral
	subs      map[string]map[string]bool // normalized char UUID -> deviceID set
	sendFails map[string]error           // deviceID -> injected failure
	initErr   error
}

// NewSimulator creates a simulator identified by name in logs
func NewSimulator(name string) *Simulator {
	return &Simulator{
		name:      name,
		state:     StateUnknown,
		centrals:  make(map[string]*SimulatedCentral),
		subs:      make(map[string]map[string]bool),
		sendFails: make(map[string]error),
	}
}

// FailInitialization makes the next Initialize call fail with err.
// Bring-up failures are fatal and must reach the caller.
func (s *Simulator) FailInitialization(err error) {
	s.mu.Lock()
	s.initErr = err
	s.mu.Unlock()
}

// Initialize powers the simulated stack on and reports the state change to
// the delegate. Synchronous so callers observe a powered-on stack on return.
func (s *Simulator) Initialize(delegate Delegate) error {
	s.mu.Lock()
	if s.initErr != nil {
		err := s.initErr
		s.mu.Unlock()
		return fmt.Errorf("peripheral bring-up: %w", err)
	}
	s.delegate = delegate
	s.state = StatePoweredOn
	s.mu.Unlock()

	logger.Info(s.name, "Peripheral stack powered on")
	if delegate != nil {
		delegate.BleStateChanged(StatePoweredOn)
	}
	return nil
}

// AddService registers a service definition. Rejected while advertising,
// matching platform stacks.
func (s *Simulator) AddService(service *gatt.Service) error {
	if err := service.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePoweredOn {
		return fmt.Errorf("cannot add service in state %s", s.state)
	}
	if s.adv != nil {
		return fmt.Errorf("cannot add service while advertising")
	}
	for _, existing := range s.services {
		if gatt.EqualUUID(existing.UUID, service.UUID) {
			return fmt.Errorf("service %s already added", gatt.ShortUUID(service.UUID))
		}
	}

	s.services = append(s.services, service)
	logger.Info(s.name, "📋 Added service %s (%d characteristic(s))",
		gatt.ShortUUID(service.UUID), len(service.Characteristics))
	return nil
}

// StartAdvertising begins advertising. Manufacturer data is carried as-is;
// real transports may drop it.
func (s *Simulator) StartAdvertising(params AdvertisingParams) error {
	s.mu.Lock()
	if s.state != StatePoweredOn {
		s.mu.Unlock()
		return fmt.Errorf("cannot advertise in state %s", s.state)
	}
	if s.adv != nil {
		s.mu.Unlock()
		return fmt.Errorf("already advertising")
	}
	s.adv = &params
	delegate := s.delegate
	s.mu.Unlock()

	logger.Info(s.name, "📡 Advertising as '%s' (%d service(s))", params.LocalName, len(params.ServiceUUIDs))
	if delegate != nil {
		delegate.AdvertisingStatusChanged(true, nil)
	}
	return nil
}

// StopAdvertising stops advertising. No-op when not advertising.
func (s *Simulator) StopAdvertising() {
	s.mu.Lock()
	if s.adv == nil {
		s.mu.Unlock()
		return
	}
	s.adv = nil
	delegate := s.delegate
	s.mu.Unlock()

	logger.Info(s.name, "📡 Stopped advertising")
	if delegate != nil {
		delegate.AdvertisingStatusChanged(false, nil)
	}
}

// IsAdvertising reports whether the simulator is currently advertising
func (s *Simulator) IsAdvertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adv != nil
}

// Advertising returns the active advertising parameters, or nil
func (s *Simulator) Advertising() *AdvertisingParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adv == nil {
		return nil
	}
	params := *s.adv
	return &params
}

// UpdateCharacteristic delivers a notification. Empty deviceID broadcasts to
// the characteristic's current subscribers; a non-empty deviceID unicasts to
// that central whether or not it subscribed, failing only when the device is
// unknown or a failure was injected for it.
func (s *Simulator) UpdateCharacteristic(charUUID string, value []byte, deviceID string) error {
	key := gatt.NormalizeUUID(charUUID)

	s.mu.Lock()
	char := s.findCharacteristicLocked(charUUID)
	if char == nil {
		s.mu.Unlock()
		return gatt.ErrAttributeNotFound
	}

	var targets []*SimulatedCentral
	if deviceID == "" {
		for id := range s.subs[key] {
			if central, ok := s.centrals[id]; ok {
				targets = append(targets, central)
			}
		}
	} else {
		central, ok := s.centrals[deviceID]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("unknown central %s: %w", deviceID, gatt.ErrInvalidHandle)
		}
		if err := s.sendFails[deviceID]; err != nil {
			s.mu.Unlock()
			return err
		}
		targets = append(targets, central)
	}
	s.mu.Unlock()

	for _, central := range targets {
		central.deliver(charUUID, value)
	}
	logger.Trace(s.name, "Delivered %d byte(s) on %s to %d central(s)",
		len(value), gatt.ShortUUID(charUUID), len(targets))
	return nil
}

// AttachCentral connects a simulated central. Returns the existing central
// when the ID is already attached.
func (s *Simulator) AttachCentral(deviceID, name string) *SimulatedCentral {
	s.mu.Lock()
	defer s.mu.Unlock()
	if central, ok := s.centrals[deviceID]; ok {
		return central
	}
	central := &SimulatedCentral{ID: deviceID, Name: name}
	s.centrals[deviceID] = central
	return central
}

// DetachCentral disconnects a central, reporting an unsubscribe for each of
// its active subscriptions first — the platform-driven eviction path the
// engine relies on for disconnects.
func (s *Simulator) DetachCentral(deviceID string) {
	s.mu.Lock()
	central, ok := s.centrals[deviceID]
	if !ok {
		s.mu.Unlock()
		return
	}

	var charKeys []string
	for key, devices := range s.subs {
		if devices[deviceID] {
			delete(devices, deviceID)
			charKeys = append(charKeys, key)
		}
	}
	sort.Strings(charKeys)
	delete(s.centrals, deviceID)
	delete(s.sendFails, deviceID)
	delegate := s.delegate
	name := central.Name
	s.mu.Unlock()

	logger.Info(s.name, "🔌 Central %s disconnected", deviceID)
	if delegate != nil {
		for _, key := range charKeys {
			delegate.SubscriptionChanged(broadcast.SubscriptionChange{
				DeviceID:           deviceID,
				CharacteristicUUID: key,
				Subscribed:         false,
				DeviceName:         name,
			})
		}
	}
}

// InjectSendFailure makes subsequent unicasts to deviceID fail with err.
// Pass nil to clear.
func (s *Simulator) InjectSendFailure(deviceID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.sendFails, deviceID)
		return
	}
	s.sendFails[deviceID] = err
}

// SimulateSubscribe drives a central enabling notifications on a
// characteristic, reporting the change to the delegate
func (s *Simulator) SimulateSubscribe(deviceID, charUUID string) error {
	return s.setSubscribed(deviceID, charUUID, true)
}

// SimulateUnsubscribe drives a central disabling notifications
func (s *Simulator) SimulateUnsubscribe(deviceID, charUUID string) error {
	return s.setSubscribed(deviceID, charUUID, false)
}

func (s *Simulator) setSubscribed(deviceID, charUUID string, subscribed bool) error {
	key := gatt.NormalizeUUID(charUUID)

	s.mu.Lock()
	central, ok := s.centrals[deviceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown central %s", deviceID)
	}
	char := s.findCharacteristicLocked(charUUID)
	if char == nil {
		s.mu.Unlock()
		return gatt.ErrAttributeNotFound
	}
	if !char.SupportsNotifications() {
		s.mu.Unlock()
		return fmt.Errorf("characteristic %s does not support notifications: %w",
			gatt.ShortUUID(charUUID), gatt.ErrWriteNotPermitted)
	}

	devices, ok := s.subs[key]
	if !ok {
		devices = make(map[string]bool)
		s.subs[key] = devices
	}
	if subscribed {
		devices[deviceID] = true
	} else {
		delete(devices, deviceID)
	}
	delegate := s.delegate
	name := central.Name
	s.mu.Unlock()

	if delegate != nil {
		delegate.SubscriptionChanged(broadcast.SubscriptionChange{
			DeviceID:           deviceID,
			CharacteristicUUID: charUUID,
			Subscribed:         subscribed,
			DeviceName:         name,
		})
	}
	return nil
}

// SimulateRead drives a central reading a characteristic, returning the
// delegate's response value and ATT status
func (s *Simulator) SimulateRead(deviceID, charUUID string, offset int) ([]byte, uint8) {
	s.mu.Lock()
	delegate := s.delegate
	char := s.findCharacteristicLocked(charUUID)
	s.mu.Unlock()

	if char == nil {
		return nil, gatt.ErrCodeAttributeNotFound
	}
	if delegate == nil {
		return char.Value, 0
	}
	return delegate.ReadRequested(&ReadRequest{
		DeviceID:           deviceID,
		CharacteristicUUID: charUUID,
		Offset:             offset,
	})
}

// SimulateWrite drives a central writing a characteristic, returning the
// delegate's ATT status
func (s *Simulator) SimulateWrite(deviceID, charUUID string, offset int, value []byte) uint8 {
	s.mu.Lock()
	delegate := s.delegate
	char := s.findCharacteristicLocked(charUUID)
	s.mu.Unlock()

	if char == nil {
		return gatt.ErrCodeAttributeNotFound
	}
	if char.Permissions&gatt.PermissionWriteable == 0 {
		return gatt.ErrCodeWriteNotPermitted
	}
	if delegate == nil {
		return 0
	}
	return delegate.WriteRequested(&WriteRequest{
		DeviceID:           deviceID,
		CharacteristicUUID: charUUID,
		Offset:             offset,
		Value:              value,
	})
}

func (s *Simulator) findCharacteristicLocked(charUUID string) *gatt.Characteristic {
	for _, service := range s.services {
		if char := service.FindCharacteristic(charUUID); char != nil {
			return char
		}
	}
	return nil
}
