package state

import "fmt"

// Attribute names one of the four device flags as it appears in URLs.
type Attribute string

const (
	Door        Attribute = "door"
	Light       Attribute = "light"
	Electricity Attribute = "electricity"
	Motion      Attribute = "motion"
)

// Attributes lists every attribute in wire order.
var Attributes = []Attribute{Door, Light, Electricity, Motion}

// ParseAttribute validates an attribute name.
func ParseAttribute(s string) (Attribute, error) {
	switch a := Attribute(s); a {
	case Door, Light, Electricity, Motion:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, s)
}

// Flag is the JSON field carrying the attribute's value in requests and
// typed stream events.
func (a Attribute) Flag() string {
	switch a {
	case Door:
		return "isOpen"
	case Motion:
		return "isDetected"
	default:
		return "isOn"
	}
}

// Event is the typed stream event name for the attribute.
func (a Attribute) Event() string {
	return string(a) + "Status"
}

// Value reads the attribute from s.
func (a Attribute) Value(s DeviceState) bool {
	switch a {
	case Door:
		return s.DoorOpen
	case Light:
		return s.LightOn
	case Electricity:
		return s.ElectricityOn
	case Motion:
		return s.MotionDetected
	}
	return false
}

// Patch builds a single-field patch setting the attribute to v.
func (a Attribute) Patch(v bool) Patch {
	switch a {
	case Door:
		return Patch{DoorOpen: &v}
	case Light:
		return Patch{LightOn: &v}
	case Electricity:
		return Patch{ElectricityOn: &v}
	case Motion:
		return Patch{MotionDetected: &v}
	}
	return Patch{}
}
