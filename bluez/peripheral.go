//go:build linux

// Package bluez implements the peripheral transport on top of go-ble/ble,
// which drives a BlueZ/HCI adapter on Linux.
package bluez

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/user/pulsebeacon/gatt"
	"github.com/user/pulsebeacon/logger"
	"github.com/user/pulsebeacon/peripheral"
)

const logPrefix = "BlueZ"

// Peripheral is a peripheral.Manager backed by a local HCI adapter.
//
// go-ble models notifications inside-out relative to this module: the stack
// calls a notify handler when a central subscribes and the handler is
// expected to push writes until the notifier's context ends. Peripheral
// bridges that into the delegate's SubscriptionChanged events and keeps the
// live notifiers registered per (characteristic, central) so
// UpdateCharacteristic can reach them.
type Peripheral struct {
	adapterID int

	mu          sync.Mutex
	device      ble.Device
	delegate    peripheral.Delegate
	advertising bool
	advCancel   context.CancelFunc
	notifiers   map[string]map[string]ble.Notifier // char key -> central addr -> notifier
}

// New creates a peripheral bound to hci<adapterID>
func New(adapterID int) *Peripheral {
	return &Peripheral{
		adapterID: adapterID,
		notifiers: make(map[string]map[string]ble.Notifier),
	}
}

// Initialize opens the HCI adapter. Failure here is fatal to bring-up and is
// returned to the caller.
func (p *Peripheral) Initialize(delegate peripheral.Delegate) error {
	device, err := linux.NewDevice(ble.OptDeviceID(p.adapterID))
	if err != nil {
		return fmt.Errorf("open hci%d: %w", p.adapterID, err)
	}
	ble.SetDefaultDevice(device)

	p.mu.Lock()
	p.device = device
	p.delegate = delegate
	p.mu.Unlock()

	logger.Info(logPrefix, "Adapter hci%d powered on", p.adapterID)
	if delegate != nil {
		delegate.BleStateChanged(peripheral.StatePoweredOn)
	}
	return nil
}

// AddService registers a service with the adapter's GATT database. The CCCD
// for notifying characteristics is managed by the stack.
func (p *Peripheral) AddService(service *gatt.Service) error {
	if err := service.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	device := p.device
	advertising := p.advertising
	p.mu.Unlock()

	if device == nil {
		return fmt.Errorf("adapter not initialized")
	}
	if advertising {
		return fmt.Errorf("cannot add service while advertising")
	}

	svcUUID, err := ble.Parse(service.UUID)
	if err != nil {
		return fmt.Errorf("service UUID %q: %w", service.UUID, err)
	}

	svc := ble.NewService(svcUUID)
	for _, char := range service.Characteristics {
		charUUID, err := ble.Parse(char.UUID)
		if err != nil {
			return fmt.Errorf("characteristic UUID %q: %w", char.UUID, err)
		}
		c := svc.NewCharacteristic(charUUID)
		p.attachHandlers(c, char)
	}

	if err := device.AddService(svc); err != nil {
		return fmt.Errorf("add service %s: %w", gatt.ShortUUID(service.UUID), err)
	}
	logger.Info(logPrefix, "📋 Added service %s (%d characteristic(s))",
		gatt.ShortUUID(service.UUID), len(service.Characteristics))
	return nil
}

func (p *Peripheral) attachHandlers(c *ble.Characteristic, char *gatt.Characteristic) {
	uuid := char.UUID

	if char.Properties&gatt.PropertyRead != 0 {
		c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			delegate := p.currentDelegate()
			if delegate == nil {
				return
			}
			value, status := delegate.ReadRequested(&peripheral.ReadRequest{
				DeviceID:           req.Conn().RemoteAddr().String(),
				CharacteristicUUID: uuid,
			})
			if status != 0 {
				return
			}
			if _, err := rsp.Write(value); err != nil {
				logger.Warn(logPrefix, "Read response on %s failed: %v", gatt.ShortUUID(uuid), err)
			}
		}))
	}

	if char.Properties&(gatt.PropertyWrite|gatt.PropertyWriteWithoutResponse) != 0 {
		c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			delegate := p.currentDelegate()
			if delegate == nil {
				return
			}
			status := delegate.WriteRequested(&peripheral.WriteRequest{
				DeviceID:           req.Conn().RemoteAddr().String(),
				CharacteristicUUID: uuid,
				Value:              req.Data(),
			})
			if status != 0 {
				logger.Warn(logPrefix, "Write to %s rejected with status 0x%02X", gatt.ShortUUID(uuid), status)
			}
		}))
	}

	// When a characteristic carries both notify and indicate, only the
	// notify path is bridged so a CCCD flip on one bit cannot fire a
	// spurious unsubscribe for the other.
	if char.Properties&gatt.PropertyNotify != 0 {
		c.HandleNotify(ble.NotifyHandlerFunc(p.notifyHandler(uuid)))
	} else if char.Properties&gatt.PropertyIndicate != 0 {
		c.HandleIndicate(ble.NotifyHandlerFunc(p.notifyHandler(uuid)))
	}
}

// notifyHandler blocks for the lifetime of one central's subscription,
// translating it into SubscriptionChanged events at both ends
func (p *Peripheral) notifyHandler(charUUID string) func(req ble.Request, ntf ble.Notifier) {
	key := gatt.NormalizeUUID(charUUID)
	return func(req ble.Request, ntf ble.Notifier) {
		deviceID := req.Conn().RemoteAddr().String()

		p.mu.Lock()
		byDevice, ok := p.notifiers[key]
		if !ok {
			byDevice = make(map[string]ble.Notifier)
			p.notifiers[key] = byDevice
		}
		byDevice[deviceID] = ntf
		p.mu.Unlock()

		delegate := p.currentDelegate()
		if delegate != nil {
			delegate.SubscriptionChanged(broadcastChange(deviceID, charUUID, true))
		}

		<-ntf.Context().Done()

		p.mu.Lock()
		if byDevice, ok := p.notifiers[key]; ok {
			delete(byDevice, deviceID)
		}
		p.mu.Unlock()

		if delegate != nil {
			delegate.SubscriptionChanged(broadcastChange(deviceID, charUUID, false))
		}
	}
}

// UpdateCharacteristic writes through the live notifier(s). Empty deviceID
// broadcasts to every central subscribed on the characteristic; a unicast to
// a central without a live notifier is an unknown-device error.
func (p *Peripheral) UpdateCharacteristic(charUUID string, value []byte, deviceID string) error {
	key := gatt.NormalizeUUID(charUUID)

	p.mu.Lock()
	byDevice := p.notifiers[key]
	targets := make(map[string]ble.Notifier, len(byDevice))
	if deviceID == "" {
		for id, ntf := range byDevice {
			targets[id] = ntf
		}
	} else {
		ntf, ok := byDevice[deviceID]
		if !ok {
			p.mu.Unlock()
			return fmt.Errorf("no live subscription for %s on %s: %w",
				deviceID, gatt.ShortUUID(charUUID), gatt.ErrInvalidHandle)
		}
		targets[deviceID] = ntf
	}
	p.mu.Unlock()

	for id, ntf := range targets {
		if _, err := ntf.Write(value); err != nil {
			if deviceID != "" {
				return fmt.Errorf("notify %s on %s: %w", id, gatt.ShortUUID(charUUID), err)
			}
			logger.Warn(logPrefix, "Notify %s on %s failed: %v", id, gatt.ShortUUID(charUUID), err)
		}
	}
	return nil
}

// StartAdvertising runs an advertising loop until StopAdvertising. The loop
// restarts after transient HCI errors. Manufacturer data is not carried on
// this transport and is dropped with a warning.
func (p *Peripheral) StartAdvertising(params peripheral.AdvertisingParams) error {
	p.mu.Lock()
	if p.device == nil {
		p.mu.Unlock()
		return fmt.Errorf("adapter not initialized")
	}
	if p.advertising {
		p.mu.Unlock()
		return fmt.Errorf("already advertising")
	}

	uuids := make([]ble.UUID, 0, len(params.ServiceUUIDs))
	for _, raw := range params.ServiceUUIDs {
		u, err := ble.Parse(raw)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("advertised service UUID %q: %w", raw, err)
		}
		uuids = append(uuids, u)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.advertising = true
	p.advCancel = cancel
	p.mu.Unlock()

	if params.ManufacturerData != nil {
		logger.Warn(logPrefix, "Manufacturer data (company 0x%04X) is not carried on this transport, dropping",
			params.ManufacturerData.CompanyID)
	}

	go func() {
		for ctx.Err() == nil {
			logger.Info(logPrefix, "📣 Advertising as '%s'", params.LocalName)
			if err := ble.AdvertiseNameAndServices(ctx, params.LocalName, uuids...); err != nil && ctx.Err() == nil {
				logger.Warn(logPrefix, "Advertising cycle ended: %v, restarting", err)
			}
		}
	}()

	if delegate := p.currentDelegate(); delegate != nil {
		delegate.AdvertisingStatusChanged(true, nil)
	}
	return nil
}

// StopAdvertising cancels the advertising loop
func (p *Peripheral) StopAdvertising() {
	p.mu.Lock()
	if !p.advertising {
		p.mu.Unlock()
		return
	}
	p.advertising = false
	cancel := p.advCancel
	p.advCancel = nil
	p.mu.Unlock()

	cancel()
	logger.Info(logPrefix, "📣 Stopped advertising")
	if delegate := p.currentDelegate(); delegate != nil {
		delegate.AdvertisingStatusChanged(false, nil)
	}
}

func (p *Peripheral) currentDelegate() peripheral.Delegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}
