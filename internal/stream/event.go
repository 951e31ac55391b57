package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/homestate-core/internal/state"
)

// StateKind is the type of the generic snapshot message.
const StateKind = "state"

// TimestampLayout renders lastUpdated as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Event is one framed message. Name is empty for the generic state
// message, which travels as an unnamed SSE event.
type Event struct {
	Name string
	Data json.RawMessage
}

// Kind returns the message kind: the event name, or "state".
func (e Event) Kind() string {
	if e.Name == "" {
		return StateKind
	}
	return e.Name
}

// WriteTo writes the event in text/event-stream framing.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	var n int
	var err error
	if e.Name != "" {
		n, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, e.Data)
	} else {
		n, err = fmt.Fprintf(w, "data: %s\n\n", e.Data)
	}
	return int64(n), err
}

// StatePayload is the data of the generic state message.
type StatePayload struct {
	DoorOpen       bool   `json:"doorOpen"`
	LightOn        bool   `json:"lightOn"`
	ElectricityOn  bool   `json:"electricityOn"`
	MotionDetected bool   `json:"motionDetected"`
	LastUpdated    string `json:"lastUpdated"`
}

// StateMessage is the generic state message.
type StateMessage struct {
	Type      string       `json:"type"`
	Data      StatePayload `json:"data"`
	Timestamp int64        `json:"timestamp"`
}

// Frames builds the five-message bundle for st. now stamps the generic
// message.
func Frames(st state.DeviceState, now time.Time) ([]Event, error) {
	generic, err := json.Marshal(StateMessage{
		Type: StateKind,
		Data: StatePayload{
			DoorOpen:       st.DoorOpen,
			LightOn:        st.LightOn,
			ElectricityOn:  st.ElectricityOn,
			MotionDetected: st.MotionDetected,
			LastUpdated:    st.LastUpdated.UTC().Format(TimestampLayout),
		},
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding state message: %w", err)
	}

	events := make([]Event, 0, 1+len(state.Attributes))
	events = append(events, Event{Data: generic})

	for _, attr := range state.Attributes {
		data, err := json.Marshal(map[string]bool{attr.Flag(): attr.Value(st)})
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", attr.Event(), err)
		}
		events = append(events, Event{Name: attr.Event(), Data: data})
	}
	return events, nil
}
