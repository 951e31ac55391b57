package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSQLiteStore_Get(t *testing.T) {
	db := setupTestDB(t)
	insertDevice(t, db, "dev-1")
	store := NewSQLiteStore(db)
	ctx := context.Background()

	st, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if st.DeviceID != "dev-1" || st.DoorOpen || st.LightOn || st.ElectricityOn || st.MotionDetected {
		t.Errorf("Get() = %+v, want zeroed record", st)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrStateNotFound", err)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	db := setupTestDB(t)
	insertDevice(t, db, "dev-1")
	store := NewSQLiteStore(db)
	ctx := context.Background()

	before, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	updated, err := store.Update(ctx, "dev-1", Patch{LightOn: Bool(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.LightOn || updated.DoorOpen {
		t.Errorf("Update() = %+v, want only lightOn set", updated)
	}
	if !updated.LastUpdated.After(before.LastUpdated) {
		t.Errorf("LastUpdated %v not after %v", updated.LastUpdated, before.LastUpdated)
	}

	updated, err = store.Update(ctx, "dev-1", Patch{DoorOpen: Bool(true)})
	if err != nil {
		t.Fatalf("second Update() error = %v", err)
	}
	if !updated.LightOn || !updated.DoorOpen {
		t.Errorf("merge lost a field: %+v", updated)
	}

	stored, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.LastUpdated.Equal(updated.LastUpdated) || stored.DoorOpen != updated.DoorOpen {
		t.Errorf("stored = %+v, returned = %+v", stored, updated)
	}
}

func TestSQLiteStore_Update_StrictlyIncreasingWithFrozenClock(t *testing.T) {
	db := setupTestDB(t)
	insertDevice(t, db, "dev-1")
	store := NewSQLiteStore(db)
	frozen := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }
	ctx := context.Background()

	var last time.Time
	for i := 0; i < 3; i++ {
		st, err := store.Update(ctx, "dev-1", Patch{MotionDetected: Bool(i%2 == 0)})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if !st.LastUpdated.After(last) {
			t.Fatalf("update %d: LastUpdated %v not after %v", i, st.LastUpdated, last)
		}
		last = st.LastUpdated
	}
}

func TestSQLiteStore_Update_Errors(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	if _, err := store.Update(ctx, "dev-1", Patch{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("empty Update() error = %v, want ErrEmptyUpdate", err)
	}
	if _, err := store.Update(ctx, "missing", Patch{DoorOpen: Bool(true)}); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrStateNotFound", err)
	}

	db.Close() //nolint:errcheck // force a driver error
	if _, err := store.Update(ctx, "dev-1", Patch{DoorOpen: Bool(true)}); !errors.Is(err, ErrStore) {
		t.Errorf("Update() on closed db error = %v, want ErrStore", err)
	}
}

func TestNextStamp(t *testing.T) {
	prev := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"clock ahead", prev.Add(time.Second), prev.Add(time.Second)},
		{"clock equal", prev, prev.Add(time.Nanosecond)},
		{"clock behind", prev.Add(-time.Hour), prev.Add(time.Nanosecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextStamp(prev, tt.now); !got.Equal(tt.want) {
				t.Errorf("nextStamp() = %v, want %v", got, tt.want)
			}
		})
	}
}
