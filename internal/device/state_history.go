package device

import (
	"context"
	"time"

	"github.com/nerrad567/homestate-core/internal/state"
)

// State history source values.
const (
	StateHistorySourceAPI    = "api"
	StateHistorySourceDevice = "device"
)

// StateHistoryEntry is one recorded snapshot of a device's state.
type StateHistoryEntry struct {
	ID        int64             `json:"id"`
	DeviceID  string            `json:"deviceId"`
	State     state.DeviceState `json:"state"`
	Source    string            `json:"source"`
	CreatedAt time.Time         `json:"createdAt"`
}

// StateHistoryRepository stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange stores st. The entry is stamped with st.LastUpdated.
	RecordStateChange(ctx context.Context, st state.DeviceState, source string) error

	// GetHistory returns up to limit entries for the device, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
