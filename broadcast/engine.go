package broadcast

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/pulsebeacon/gatt"
	"github.com/user/pulsebeacon/logger"
)

const logPrefix = "Engine"

// Sender delivers a characteristic value to the transport. An empty deviceID
// means broadcast to every central currently subscribed on the transport
// side; a non-empty deviceID is a unicast and the transport may reject an
// unknown device. peripheral.Manager satisfies this interface.
type Sender interface {
	UpdateCharacteristic(charUUID string, value []byte, deviceID string) error
}

// PayloadFunc produces the next notification body for a channel. It is
// called with the engine lock held, so generator state needs no locking of
// its own, and it must be deterministic given its prior internal state.
type PayloadFunc func() []byte

var (
	// ErrShutdown is returned by operations on an engine after Shutdown
	ErrShutdown = errors.New("broadcast engine is shut down")

	// ErrChannelExists is returned when registering a duplicate channel
	ErrChannelExists = errors.New("channel already registered")
)

// channel tracks one characteristic's subscriber set and periodic sender.
// Its task is non-nil exactly while the subscriber set is non-empty.
type channel struct {
	uuid        string // as registered, passed to the sender
	interval    time.Duration
	generate    PayloadFunc
	subscribers map[string]bool // deviceID set
	task        Task
}

// Engine is the subscription-gated broadcast engine. It owns one channel per
// notifying characteristic, starts a channel's periodic sender when its
// first subscriber arrives and stops it when the last one leaves, and fans
// periodic payloads out to the subscribed devices.
//
// All shared state is guarded by a single mutex; subscription changes and
// ticks on the same channel are serialized. Per-device sends run outside the
// lock so one transport call in flight never blocks other channels' ticks or
// incoming subscription changes.
type Engine struct {
	mu        sync.Mutex
	sender    Sender
	scheduler Scheduler

	channels map[string]*channel // normalized UUID -> channel

	// Connected-device registry: a device is present while it holds at
	// least one subscription on any channel. Reporting only, never used
	// for routing.
	deviceSubs  map[string]map[string]bool // deviceID -> set of channel keys
	deviceNames map[string]string

	onEvent func(Event)
	down    bool
}

// NewEngine creates an engine dispatching through sender. A nil scheduler
// defaults to the time.Ticker-backed one.
func NewEngine(sender Sender, scheduler Scheduler) *Engine {
	if scheduler == nil {
		scheduler = NewTickerScheduler()
	}
	return &Engine{
		sender:      sender,
		scheduler:   scheduler,
		channels:    make(map[string]*channel),
		deviceSubs:  make(map[string]map[string]bool),
		deviceNames: make(map[string]string),
	}
}

// SetEventHook installs an observer for engine events. Must be called before
// the engine starts receiving subscription changes. The hook is invoked
// outside the engine lock and may call back into the engine.
func (e *Engine) SetEventHook(hook func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent = hook
}

// RegisterChannel creates the broadcast channel for a characteristic.
// Called at service-registration time; the periodic sender does not start
// here but on the channel's first subscriber.
func (e *Engine) RegisterChannel(charUUID string, interval time.Duration, generate PayloadFunc) error {
	if generate == nil {
		return fmt.Errorf("channel %s: payload generator must not be nil", gatt.ShortUUID(charUUID))
	}
	if interval <= 0 {
		return fmt.Errorf("channel %s: interval must be positive, got %v", gatt.ShortUUID(charUUID), interval)
	}

	key := gatt.NormalizeUUID(charUUID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.down {
		return ErrShutdown
	}
	if _, exists := e.channels[key]; exists {
		return fmt.Errorf("channel %s: %w", gatt.ShortUUID(charUUID), ErrChannelExists)
	}

	e.channels[key] = &channel{
		uuid:        charUUID,
		interval:    interval,
		generate:    generate,
		subscribers: make(map[string]bool),
	}

	logger.Debug(logPrefix, "Registered channel %s (interval %v)", gatt.ShortUUID(charUUID), interval)
	return nil
}

// HandleSubscriptionChange applies a subscribe/unsubscribe event to the
// target channel. It is idempotent: subscribing an already-subscribed device
// or unsubscribing an absent one changes nothing. The channel's periodic
// sender starts on the first subscriber and stops on the last unsubscribe.
// No transport I/O happens here.
func (e *Engine) HandleSubscriptionChange(ev SubscriptionChange) {
	key := gatt.NormalizeUUID(ev.CharacteristicUUID)

	e.mu.Lock()
	if e.down {
		e.mu.Unlock()
		return
	}

	ch, ok := e.channels[key]
	if !ok {
		e.mu.Unlock()
		logger.Warn(logPrefix, "Subscription change for unknown channel %s from %s, ignoring",
			gatt.ShortUUID(ev.CharacteristicUUID), ev.DisplayName())
		return
	}

	var events []Event

	if ev.Subscribed {
		if ev.DeviceName != "" {
			e.deviceNames[ev.DeviceID] = ev.DeviceName
		}
		if !ch.subscribers[ev.DeviceID] {
			ch.subscribers[ev.DeviceID] = true
			e.addDeviceSubLocked(ev.DeviceID, key)
			events = append(events, Event{
				Kind:               EventSubscribed,
				CharacteristicUUID: ch.uuid,
				DeviceID:           ev.DeviceID,
				DeviceName:         ev.DisplayName(),
				Subscribers:        len(ch.subscribers),
			})
			if len(ch.subscribers) == 1 {
				ch.task = e.scheduler.Schedule(ch.interval, func() { e.Tick(key) })
				events = append(events, Event{Kind: EventChannelStarted, CharacteristicUUID: ch.uuid})
			}
		}
	} else {
		if ch.subscribers[ev.DeviceID] {
			delete(ch.subscribers, ev.DeviceID)
			e.removeDeviceSubLocked(ev.DeviceID, key)
			events = append(events, Event{
				Kind:               EventUnsubscribed,
				CharacteristicUUID: ch.uuid,
				DeviceID:           ev.DeviceID,
				DeviceName:         ev.DisplayName(),
				Subscribers:        len(ch.subscribers),
			})
			if len(ch.subscribers) == 0 && ch.task != nil {
				ch.task.Stop()
				ch.task = nil
				events = append(events, Event{Kind: EventChannelStopped, CharacteristicUUID: ch.uuid})
			}
		}
	}
	e.mu.Unlock()

	for _, event := range events {
		switch event.Kind {
		case EventSubscribed:
			logger.Info(logPrefix, "🔔 %s subscribed to %s (%d subscriber(s))",
				event.DeviceName, gatt.ShortUUID(event.CharacteristicUUID), event.Subscribers)
		case EventUnsubscribed:
			logger.Info(logPrefix, "🔕 %s unsubscribed from %s (%d subscriber(s))",
				event.DeviceName, gatt.ShortUUID(event.CharacteristicUUID), event.Subscribers)
		case EventChannelStarted:
			logger.Info(logPrefix, "▶️  Started periodic sender for %s", gatt.ShortUUID(event.CharacteristicUUID))
		case EventChannelStopped:
			logger.Info(logPrefix, "⏹  Stopped periodic sender for %s", gatt.ShortUUID(event.CharacteristicUUID))
		}
		e.emit(event)
	}
}

// Tick runs one periodic broadcast round for a channel: generate the next
// payload once, then send it to every device in the subscriber set as it
// stood at tick start. A subscribe or unsubscribe arriving while sends are
// in flight applies to the next tick. Ticking a channel with no subscribers
// is a no-op, which also guards the race between task cancellation and an
// already-scheduled tick.
//
// Per-device sends are isolated: a failing device is reported and skipped,
// the remaining devices still receive the payload.
func (e *Engine) Tick(charUUID string) {
	key := gatt.NormalizeUUID(charUUID)

	e.mu.Lock()
	if e.down {
		e.mu.Unlock()
		return
	}
	ch, ok := e.channels[key]
	if !ok || len(ch.subscribers) == 0 {
		e.mu.Unlock()
		return
	}

	payload := ch.generate()

	devices := make([]string, 0, len(ch.subscribers))
	for deviceID := range ch.subscribers {
		devices = append(devices, deviceID)
	}
	sort.Strings(devices)
	uuid := ch.uuid
	e.mu.Unlock()

	sent := 0
	for _, deviceID := range devices {
		if err := e.sender.UpdateCharacteristic(uuid, payload, deviceID); err != nil {
			logger.Warn(logPrefix, "Send to %s on %s failed: %v", deviceID, gatt.ShortUUID(uuid), err)
			e.emit(Event{
				Kind:               EventSendFailed,
				CharacteristicUUID: uuid,
				DeviceID:           deviceID,
				Error:              err.Error(),
			})
			continue
		}
		sent++
	}

	logger.Trace(logPrefix, "Tick %s: %d byte(s) to %d of %d device(s)",
		gatt.ShortUUID(uuid), len(payload), sent, len(devices))
	e.emit(Event{Kind: EventTick, CharacteristicUUID: uuid, Subscribers: len(devices), Sent: sent})
}

// SendUnicast sends a caller-initiated notification to one device. The
// subscriber set gates only the periodic path: a unicast to a device that
// never subscribed is still attempted, and the transport's rejection of an
// unknown device surfaces as the returned error.
func (e *Engine) SendUnicast(charUUID, deviceID string, payload []byte) error {
	e.mu.Lock()
	down := e.down
	e.mu.Unlock()
	if down {
		return ErrShutdown
	}

	if err := e.sender.UpdateCharacteristic(charUUID, payload, deviceID); err != nil {
		return fmt.Errorf("unicast to %s on %s: %w", deviceID, gatt.ShortUUID(charUUID), err)
	}
	return nil
}

// SendBroadcast sends a caller-initiated notification to every central the
// transport currently has subscribed on the characteristic.
func (e *Engine) SendBroadcast(charUUID string, payload []byte) error {
	e.mu.Lock()
	down := e.down
	e.mu.Unlock()
	if down {
		return ErrShutdown
	}

	if err := e.sender.UpdateCharacteristic(charUUID, payload, ""); err != nil {
		return fmt.Errorf("broadcast on %s: %w", gatt.ShortUUID(charUUID), err)
	}
	return nil
}

// Shutdown cancels every active periodic sender and clears all subscriber
// state. Safe to call multiple times and with zero active channels. A tick
// already in flight self-guards against the cleared state.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.down {
		e.mu.Unlock()
		return
	}
	e.down = true
	for _, ch := range e.channels {
		if ch.task != nil {
			ch.task.Stop()
			ch.task = nil
		}
		ch.subscribers = make(map[string]bool)
	}
	e.channels = make(map[string]*channel)
	e.deviceSubs = make(map[string]map[string]bool)
	e.deviceNames = make(map[string]string)
	e.mu.Unlock()

	logger.Info(logPrefix, "Engine shut down")
	e.emit(Event{Kind: EventShutdown})
}

// TimerActive reports whether the channel's periodic sender is running.
// The engine maintains: timer active if and only if the channel's
// subscriber set is non-empty.
func (e *Engine) TimerActive(charUUID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[gatt.NormalizeUUID(charUUID)]
	return ok && ch.task != nil
}

// Subscribers returns the channel's current subscriber device IDs, sorted
func (e *Engine) Subscribers(charUUID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[gatt.NormalizeUUID(charUUID)]
	if !ok {
		return nil
	}
	devices := make([]string, 0, len(ch.subscribers))
	for deviceID := range ch.subscribers {
		devices = append(devices, deviceID)
	}
	sort.Strings(devices)
	return devices
}

// ConnectedDevices returns every device holding at least one subscription
// across any channel, sorted by ID. Display names fall back to the raw
// device identifier.
func (e *Engine) ConnectedDevices() []Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	devices := make([]Device, 0, len(e.deviceSubs))
	for deviceID := range e.deviceSubs {
		name := e.deviceNames[deviceID]
		if name == "" {
			name = deviceID
		}
		devices = append(devices, Device{ID: deviceID, Name: name})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

func (e *Engine) addDeviceSubLocked(deviceID, channelKey string) {
	subs, ok := e.deviceSubs[deviceID]
	if !ok {
		subs = make(map[string]bool)
		e.deviceSubs[deviceID] = subs
	}
	subs[channelKey] = true
}

// removeDeviceSubLocked drops a device's membership in one channel and
// evicts the device from the registry once its last subscription is gone.
func (e *Engine) removeDeviceSubLocked(deviceID, channelKey string) {
	subs, ok := e.deviceSubs[deviceID]
	if !ok {
		return
	}
	delete(subs, channelKey)
	if len(subs) == 0 {
		delete(e.deviceSubs, deviceID)
		delete(e.deviceNames, deviceID)
	}
}

func (e *Engine) emit(event Event) {
	e.mu.Lock()
	hook := e.onEvent
	e.mu.Unlock()
	if hook != nil {
		hook(event)
	}
}
