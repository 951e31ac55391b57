package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const selectStateSQL = `
	SELECT device_id, door_open, light_on, electricity_on, motion_detected, last_updated
	FROM device_states WHERE device_id = ?`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore keeps device state in the device_states table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore returns a store over db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get reads the stored snapshot.
func (s *SQLiteStore) Get(ctx context.Context, deviceID string) (DeviceState, error) {
	st, err := scanState(s.db.QueryRowContext(ctx, selectStateSQL, deviceID))
	if err != nil {
		return DeviceState{}, storeErr(deviceID, "reading", err)
	}
	return st, nil
}

// Update merges p into the stored record inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, deviceID string, p Patch) (DeviceState, error) {
	if p.IsEmpty() {
		return DeviceState{}, ErrEmptyUpdate
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DeviceState{}, storeErr(deviceID, "starting update", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	current, err := scanState(tx.QueryRowContext(ctx, selectStateSQL, deviceID))
	if err != nil {
		return DeviceState{}, storeErr(deviceID, "reading", err)
	}

	next := p.Apply(current)
	next.LastUpdated = nextStamp(current.LastUpdated, s.now())

	if _, err := tx.ExecContext(ctx, `
		UPDATE device_states
		SET door_open = ?, light_on = ?, electricity_on = ?, motion_detected = ?, last_updated = ?
		WHERE device_id = ?`,
		next.DoorOpen, next.LightOn, next.ElectricityOn, next.MotionDetected,
		formatStamp(next.LastUpdated), deviceID,
	); err != nil {
		return DeviceState{}, storeErr(deviceID, "writing", err)
	}

	if err := tx.Commit(); err != nil {
		return DeviceState{}, storeErr(deviceID, "committing", err)
	}
	return next, nil
}

// Seed inserts an all-false record for a new device. It accepts a
// transaction so device creation and seeding commit together.
func Seed(ctx context.Context, db execer, deviceID string, now time.Time) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO device_states (device_id, door_open, light_on, electricity_on, motion_detected, last_updated)
		VALUES (?, 0, 0, 0, 0, ?)`,
		deviceID, formatStamp(now),
	); err != nil {
		return fmt.Errorf("%w: seeding %s: %w", ErrStore, deviceID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (DeviceState, error) {
	var st DeviceState
	var stamp string
	if err := row.Scan(&st.DeviceID, &st.DoorOpen, &st.LightOn, &st.ElectricityOn, &st.MotionDetected, &stamp); err != nil {
		return DeviceState{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return DeviceState{}, fmt.Errorf("parsing last_updated: %w", err)
	}
	st.LastUpdated = t
	return st, nil
}

// nextStamp keeps LastUpdated strictly increasing even when the wall clock
// stalls or steps backwards.
func nextStamp(prev, now time.Time) time.Time {
	now = now.UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond).UTC()
	}
	return now
}

func formatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func storeErr(deviceID, op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrStateNotFound, deviceID)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStore, op, deviceID, err)
}
