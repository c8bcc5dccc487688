//go:build linux

package bluez

import "github.com/user/pulsebeacon/broadcast"

// broadcastChange builds the subscription event for a central identified
// only by its connection address. BlueZ exposes no display name at this
// layer, so the engine's deviceID fallback applies.
func broadcastChange(deviceID, charUUID string, subscribed bool) broadcast.SubscriptionChange {
	return broadcast.SubscriptionChange{
		DeviceID:           deviceID,
		CharacteristicUUID: charUUID,
		Subscribed:         subscribed,
	}
}
