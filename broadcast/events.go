package broadcast

// SubscriptionChange is the inbound event that drives all engine state
// transitions. It mirrors the subscription callback every peripheral
// transport delivers when a central enables or disables notifications.
type SubscriptionChange struct {
	DeviceID           string
	CharacteristicUUID string
	Subscribed         bool
	DeviceName         string // best-effort display name, may be empty
}

// DisplayName returns the device's display name, falling back to the raw
// device identifier. The fallback never affects subscriber-set membership;
// membership keys on DeviceID only.
func (s SubscriptionChange) DisplayName() string {
	if s.DeviceName != "" {
		return s.DeviceName
	}
	return s.DeviceID
}

// EventKind classifies engine observer events
type EventKind string

const (
	EventSubscribed     EventKind = "subscribed"
	EventUnsubscribed   EventKind = "unsubscribed"
	EventChannelStarted EventKind = "channel_started"
	EventChannelStopped EventKind = "channel_stopped"
	EventTick           EventKind = "tick"
	EventSendFailed     EventKind = "send_failed"
	EventShutdown       EventKind = "shutdown"
)

// Event is delivered to the engine's observer hook. Subscribers carries the
// channel's subscriber count after the event took effect; Sent carries the
// number of successful deliveries for a tick.
type Event struct {
	Kind               EventKind `json:"kind"`
	CharacteristicUUID string    `json:"characteristic,omitempty"`
	DeviceID           string    `json:"device,omitempty"`
	DeviceName         string    `json:"deviceName,omitempty"`
	Subscribers        int       `json:"subscribers,omitempty"`
	Sent               int       `json:"sent,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Device identifies a connected device for reporting. A device is connected
// while it holds at least one subscription on any channel.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
