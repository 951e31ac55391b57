package state

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homestate-core/internal/infrastructure/database"
	_ "github.com/nerrad567/homestate-core/migrations"
)

// setupTestDB opens an in-memory database with the full schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

// insertDevice creates a device row and its seeded state record.
func insertDevice(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.Exec(
		"INSERT INTO devices (id, name, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, "test "+id, "user-1", now, now,
	); err != nil {
		t.Fatalf("failed to insert device: %v", err)
	}
	if err := Seed(context.Background(), db, id, time.Now()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
}

// MockStore is an in-memory Store with error injection.
type MockStore struct {
	mu        sync.Mutex
	states    map[string]DeviceState
	getErr    error
	updateErr error
	gets      int
	updates   int
}

func NewMockStore(ids ...string) *MockStore {
	m := &MockStore{states: make(map[string]DeviceState)}
	for _, id := range ids {
		m.states[id] = DeviceState{DeviceID: id, LastUpdated: time.Unix(0, 0).UTC()}
	}
	return m
}

func (m *MockStore) Get(_ context.Context, id string) (DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return DeviceState{}, m.getErr
	}
	st, ok := m.states[id]
	if !ok {
		return DeviceState{}, ErrStateNotFound
	}
	return st, nil
}

func (m *MockStore) Update(_ context.Context, id string, p Patch) (DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return DeviceState{}, m.updateErr
	}
	if p.IsEmpty() {
		return DeviceState{}, ErrEmptyUpdate
	}
	st, ok := m.states[id]
	if !ok {
		return DeviceState{}, ErrStateNotFound
	}
	next := p.Apply(st)
	next.LastUpdated = nextStamp(st.LastUpdated, time.Now())
	m.states[id] = next
	return next, nil
}

// set replaces a stored record, as another process would.
func (m *MockStore) set(st DeviceState) {
	m.mu.Lock()
	m.states[st.DeviceID] = st
	m.mu.Unlock()
}

func (m *MockStore) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// recorder collects broadcast snapshots.
type recorder struct {
	mu     sync.Mutex
	states []DeviceState
}

func (r *recorder) listen(st DeviceState) error {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceState, len(r.states))
	copy(out, r.states)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
