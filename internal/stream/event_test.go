package stream

import (
	"bytes"
	"testing"
	"time"

	"github.com/nerrad567/homestate-core/internal/state"
)

func TestFrames_WireFormat(t *testing.T) {
	st := state.DeviceState{
		DeviceID:       "dev-1",
		DoorOpen:       true,
		LightOn:        false,
		ElectricityOn:  true,
		MotionDetected: false,
		LastUpdated:    time.Date(2026, 3, 4, 5, 6, 7, 890123456, time.UTC),
	}
	now := time.UnixMilli(1772600767999)

	events, err := Frames(st, now)
	if err != nil {
		t.Fatalf("Frames() error = %v", err)
	}

	var buf bytes.Buffer
	for _, e := range events {
		if _, err := e.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo() error = %v", err)
		}
	}

	want := `data: {"type":"state","data":{"doorOpen":true,"lightOn":false,"electricityOn":true,"motionDetected":false,"lastUpdated":"2026-03-04T05:06:07.890Z"},"timestamp":1772600767999}` + "\n\n" +
		"event: doorStatus\ndata: {\"isOpen\":true}\n\n" +
		"event: lightStatus\ndata: {\"isOn\":false}\n\n" +
		"event: electricityStatus\ndata: {\"isOn\":true}\n\n" +
		"event: motionStatus\ndata: {\"isDetected\":false}\n\n"

	if got := buf.String(); got != want {
		t.Errorf("wire format mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestEvent_Kind(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{}, "state"},
		{Event{Name: "doorStatus"}, "doorStatus"},
	}
	for _, tt := range tests {
		if got := tt.event.Kind(); got != tt.want {
			t.Errorf("Kind() = %q, want %q", got, tt.want)
		}
	}
}

func TestFrames_LastUpdatedIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	st := state.DeviceState{LastUpdated: time.Date(2026, 1, 1, 2, 0, 0, 0, loc)}

	events, err := Frames(st, time.Now())
	if err != nil {
		t.Fatalf("Frames() error = %v", err)
	}
	if !bytes.Contains(events[0].Data, []byte(`"lastUpdated":"2026-01-01T00:00:00.000Z"`)) {
		t.Errorf("generic message = %s", events[0].Data)
	}
}
