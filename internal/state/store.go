package state

import "context"

// Store persists device state.
//
// Update merges the patch into the stored record and stamps LastUpdated
// with a server time strictly later than the previous stamp. Both methods
// return ErrStateNotFound for a device without a record; other failures
// wrap ErrStore.
type Store interface {
	Get(ctx context.Context, deviceID string) (DeviceState, error)
	Update(ctx context.Context, deviceID string, p Patch) (DeviceState, error)
}
