package gatt

import "testing"

func validService() *Service {
	return &Service{
		UUID:    "0000180f-0000-1000-8000-00805f9b34fb",
		Primary: true,
		Characteristics: []*Characteristic{
			{
				UUID:        "00002a19-0000-1000-8000-00805f9b34fb",
				Properties:  PropertyRead | PropertyNotify,
				Permissions: PermissionReadable,
			},
		},
	}
}

func TestServiceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Service)
		wantErr bool
	}{
		{"valid", func(s *Service) {}, false},
		{"empty service UUID", func(s *Service) { s.UUID = "" }, true},
		{"no characteristics", func(s *Service) { s.Characteristics = nil }, true},
		{"empty characteristic UUID", func(s *Service) { s.Characteristics[0].UUID = "" }, true},
		{"no properties", func(s *Service) { s.Characteristics[0].Properties = 0 }, true},
		{"duplicate characteristic", func(s *Service) {
			dup := *s.Characteristics[0]
			dup.UUID = "2A19" // same attribute in shorthand form
			s.Characteristics = append(s.Characteristics, &dup)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validService()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindCharacteristicIsCaseInsensitive(t *testing.T) {
	s := validService()
	if got := s.FindCharacteristic("00002A19-0000-1000-8000-00805F9B34FB"); got == nil {
		t.Error("Expected to find characteristic regardless of case")
	}
	if got := s.FindCharacteristic("2a19"); got == nil {
		t.Error("Expected to find characteristic by shorthand")
	}
	if got := s.FindCharacteristic("2a20"); got != nil {
		t.Error("Found a characteristic that does not exist")
	}
}

func TestSupportsNotifications(t *testing.T) {
	tests := []struct {
		name  string
		props Properties
		want  bool
	}{
		{"notify", PropertyNotify, true},
		{"indicate", PropertyIndicate, true},
		{"read only", PropertyRead, false},
		{"write only", PropertyWrite, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Characteristic{Properties: tt.props}
			if got := c.SupportsNotifications(); got != tt.want {
				t.Errorf("SupportsNotifications() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPropertiesString(t *testing.T) {
	if got := (PropertyRead | PropertyNotify).String(); got != "read|notify" {
		t.Errorf("Properties.String() = %q", got)
	}
	if got := Properties(0).String(); got != "none" {
		t.Errorf("Empty properties = %q", got)
	}
}
