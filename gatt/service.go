package gatt

import "fmt"

// Properties is the characteristic property bitmask
type Properties uint8

const (
	PropertyRead Properties = 1 << iota
	PropertyWrite
	PropertyWriteWithoutResponse
	PropertyNotify
	PropertyIndicate
)

// Permissions is the attribute permission bitmask
type Permissions uint8

const (
	PermissionReadable Permissions = 1 << iota
	PermissionWriteable
)

// Service represents a GATT service definition as registered with a
// peripheral transport
type Service struct {
	UUID            string
	Primary         bool
	Characteristics []*Characteristic
}

// Characteristic represents a GATT characteristic definition.
// Descriptors may be left empty: transports auto-manage the CCCD for
// characteristics carrying the Notify or Indicate property.
type Characteristic struct {
	UUID        string
	Properties  Properties
	Permissions Permissions
	Value       []byte
	Descriptors []*Descriptor
}

// Descriptor represents a GATT descriptor
type Descriptor struct {
	UUID  string
	Value []byte
}

// SupportsNotifications reports whether the characteristic can carry
// server-initiated updates
func (c *Characteristic) SupportsNotifications() bool {
	return c.Properties&(PropertyNotify|PropertyIndicate) != 0
}

// Validate checks a service definition before it is handed to a transport
func (s *Service) Validate() error {
	if s.UUID == "" {
		return fmt.Errorf("service UUID must not be empty")
	}
	if len(s.Characteristics) == 0 {
		return fmt.Errorf("service %s has no characteristics", ShortUUID(s.UUID))
	}
	seen := make(map[string]bool)
	for _, char := range s.Characteristics {
		if char.UUID == "" {
			return fmt.Errorf("service %s has a characteristic with an empty UUID", ShortUUID(s.UUID))
		}
		key := NormalizeUUID(char.UUID)
		if seen[key] {
			return fmt.Errorf("service %s declares characteristic %s twice", ShortUUID(s.UUID), ShortUUID(char.UUID))
		}
		seen[key] = true
		if char.Properties == 0 {
			return fmt.Errorf("characteristic %s has no properties", ShortUUID(char.UUID))
		}
	}
	return nil
}

// FindCharacteristic returns the characteristic with the given UUID, or nil
func (s *Service) FindCharacteristic(uuid string) *Characteristic {
	for _, char := range s.Characteristics {
		if EqualUUID(char.UUID, uuid) {
			return char
		}
	}
	return nil
}

func (p Properties) String() string {
	names := []struct {
		bit  Properties
		name string
	}{
		{PropertyRead, "read"},
		{PropertyWrite, "write"},
		{PropertyWriteWithoutResponse, "writeWithoutResponse"},
		{PropertyNotify, "notify"},
		{PropertyIndicate, "indicate"},
	}
	out := ""
	for _, n := range names {
		if p&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}
