package state

import "time"

// DeviceState is the full snapshot of one device.
type DeviceState struct {
	DeviceID       string    `json:"deviceId"`
	DoorOpen       bool      `json:"doorOpen"`
	LightOn        bool      `json:"lightOn"`
	ElectricityOn  bool      `json:"electricityOn"`
	MotionDetected bool      `json:"motionDetected"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	DoorOpen       *bool `json:"doorOpen,omitempty"`
	LightOn        *bool `json:"lightOn,omitempty"`
	ElectricityOn  *bool `json:"electricityOn,omitempty"`
	MotionDetected *bool `json:"motionDetected,omitempty"`
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return p.DoorOpen == nil && p.LightOn == nil && p.ElectricityOn == nil && p.MotionDetected == nil
}

// Apply returns s with the patch merged in. LastUpdated is not touched.
func (p Patch) Apply(s DeviceState) DeviceState {
	if p.DoorOpen != nil {
		s.DoorOpen = *p.DoorOpen
	}
	if p.LightOn != nil {
		s.LightOn = *p.LightOn
	}
	if p.ElectricityOn != nil {
		s.ElectricityOn = *p.ElectricityOn
	}
	if p.MotionDetected != nil {
		s.MotionDetected = *p.MotionDetected
	}
	return s
}

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool {
	return &b
}
