package gatt

import (
	"fmt"
	"strings"
)

// bluetoothBaseUUIDSuffix is the tail shared by all 16-bit assigned UUIDs
// once they are expanded to 128-bit form.
const bluetoothBaseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID canonicalizes a UUID string for comparison and map keys:
// lowercase, 16-bit shorthand expanded to full 128-bit form.
// UUID comparison in GATT is case-insensitive, so every map keyed by a
// characteristic UUID must key on the normalized form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")

	// 16-bit (4 hex chars) or 32-bit (8 hex chars) shorthand
	if len(u) == 4 {
		return "0000" + u + bluetoothBaseUUIDSuffix
	}
	if len(u) == 8 && !strings.Contains(u, "-") {
		return u + bluetoothBaseUUIDSuffix
	}

	return u
}

// EqualUUID reports whether two UUID strings identify the same attribute,
// ignoring case and shorthand form.
func EqualUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// ShortUUID safely truncates a UUID for logging (max 8 chars)
func ShortUUID(uuid string) string {
	if len(uuid) <= 8 {
		return uuid
	}
	return uuid[:8]
}

// UUID16 formats a 16-bit assigned number as a full 128-bit UUID string
func UUID16(assigned uint16) string {
	return fmt.Sprintf("0000%04x%s", assigned, bluetoothBaseUUIDSuffix)
}
