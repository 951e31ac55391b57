package influxdb

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/homestate-core/internal/state"
)

// MeasurementDeviceState is the measurement holding state snapshots.
const MeasurementDeviceState = "device_state"

// WriteStateSnapshot queues st as one point. It has the
// state.ObserverFunc signature so it can be attached with
// Manager.Observe.
func (c *Client) WriteStateSnapshot(_ context.Context, st state.DeviceState) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(statePoint(st))
	return nil
}

// statePoint maps a snapshot to a point tagged by device and stamped
// with the snapshot's own time, so replays land on the same series entry.
func statePoint(st state.DeviceState) *write.Point {
	return write.NewPoint(
		MeasurementDeviceState,
		map[string]string{"device_id": st.DeviceID},
		map[string]any{
			"door_open":       st.DoorOpen,
			"light_on":        st.LightOn,
			"electricity_on":  st.ElectricityOn,
			"motion_detected": st.MotionDetected,
		},
		st.LastUpdated,
	)
}
