package device

import "time"

// Type classifies the hardware behind a device.
type Type string

// Supported device types.
const (
	TypeESP8266 Type = "esp8266"
)

// ValidTypes lists every supported device type.
var ValidTypes = []Type{TypeESP8266}

// Device is a user-owned board whose door, light, electricity and motion
// state is tracked by the state package.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"userId"`
	Type   Type   `json:"type"`

	// IsOnline and LastSeen are stamped whenever the device's state is read.
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeepCopy returns a copy that shares no memory with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		cp.LastSeen = &t
	}
	return &cp
}
