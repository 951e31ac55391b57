package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	gets    int
	// For testing error paths
	createErr   error
	getErr      error
	markSeenErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

func (m *MockRepository) ListByUser(_ context.Context, userID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var devices []Device
	for _, d := range m.devices {
		if d.UserID == userID {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *MockRepository) MarkSeen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markSeenErr != nil {
		return m.markSeenErr
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.IsOnline = true
	d.LastSeen = &at
	return nil
}

func TestRegistry_CreateDevice(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	dev := &Device{Name: "  Hallway  ", UserID: "user-1"}
	if err := reg.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if dev.ID == "" {
		t.Error("CreateDevice() did not generate an ID")
	}
	if dev.Type != TypeESP8266 {
		t.Errorf("Type = %q, want esp8266", dev.Type)
	}
	if dev.Name != "Hallway" {
		t.Errorf("Name = %q, want trimmed", dev.Name)
	}
	if reg.GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1", reg.GetDeviceCount())
	}
}

func TestRegistry_CreateDevice_Validation(t *testing.T) {
	tests := []struct {
		name    string
		dev     *Device
		wantErr error
	}{
		{"empty name", &Device{Name: " ", UserID: "u"}, ErrInvalidName},
		{"missing user", &Device{Name: "x"}, ErrInvalidUser},
		{"unknown type", &Device{Name: "x", UserID: "u", Type: "arduino"}, ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(NewMockRepository())
			err := reg.CreateDevice(context.Background(), tt.dev)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateDevice() error = %v, want %v", err, tt.wantErr)
			}
			if reg.GetDeviceCount() != 0 {
				t.Error("invalid device was cached")
			}
		})
	}
}

func TestRegistry_CreateDevice_RepositoryError(t *testing.T) {
	repo := NewMockRepository()
	repo.createErr = errors.New("disk full")
	reg := NewRegistry(repo)

	if err := reg.CreateDevice(context.Background(), &Device{Name: "x", UserID: "u"}); err == nil {
		t.Fatal("CreateDevice() error = nil, want repository error")
	}
	if reg.GetDeviceCount() != 0 {
		t.Error("failed device was cached")
	}
}

func TestRegistry_GetDevice_CachesAndCopies(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = testDevice("dev-1", "Hallway", "user-1")
	reg := NewRegistry(repo)
	ctx := context.Background()

	first, err := reg.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	first.Name = "mutated"

	second, err := reg.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if second.Name != "Hallway" {
		t.Errorf("cached device was mutated through a returned copy: %q", second.Name)
	}
	if repo.gets != 1 {
		t.Errorf("repository reads = %d, want 1", repo.gets)
	}
}

func TestRegistry_Exists(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = testDevice("dev-1", "Hallway", "user-1")
	reg := NewRegistry(repo)
	ctx := context.Background()

	tests := []struct {
		id   string
		want bool
	}{
		{"dev-1", true},
		{"missing", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := reg.Exists(ctx, tt.id)
		if err != nil {
			t.Errorf("Exists(%q) error = %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	repo.getErr = errors.New("db down")
	if _, err := reg.Exists(ctx, "uncached"); err == nil {
		t.Error("Exists() error = nil, want repository error")
	}
}

func TestRegistry_ListDevices(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["b"] = testDevice("b", "Bedroom", "user-1")
	repo.devices["a"] = testDevice("a", "Attic", "user-2")
	repo.devices["c"] = testDevice("c", "Cellar", "user-1")
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	all, err := reg.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Errorf("ListDevices() = %+v, want a,b,c", all)
	}

	mine, err := reg.ListDevicesByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListDevicesByUser() error = %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "b" || mine[1].ID != "c" {
		t.Errorf("ListDevicesByUser() = %+v, want b,c", mine)
	}
}

func TestRegistry_ListDevices_BeforeRefreshUsesRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["a"] = testDevice("a", "Attic", "user-1")
	repo.devices["b"] = testDevice("b", "Bedroom", "user-1")
	reg := NewRegistry(repo)
	ctx := context.Background()

	// Partially populate the cache.
	if _, err := reg.GetDevice(ctx, "a"); err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}

	all, err := reg.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListDevices() returned %d devices, want 2", len(all))
	}
}

func TestRegistry_RenameDevice(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = testDevice("dev-1", "Old", "user-1")
	reg := NewRegistry(repo)
	ctx := context.Background()

	got, err := reg.RenameDevice(ctx, "dev-1", "New")
	if err != nil {
		t.Fatalf("RenameDevice() error = %v", err)
	}
	if got.Name != "New" || repo.devices["dev-1"].Name != "New" {
		t.Errorf("RenameDevice() = %+v, stored %+v", got, repo.devices["dev-1"])
	}

	if _, err := reg.RenameDevice(ctx, "dev-1", ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("RenameDevice(empty) error = %v, want ErrInvalidName", err)
	}
	if _, err := reg.RenameDevice(ctx, "missing", "x"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("RenameDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	dev := &Device{Name: "Hallway", UserID: "user-1"}
	if err := reg.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := reg.DeleteDevice(ctx, dev.ID); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if ok, _ := reg.Exists(ctx, dev.ID); ok {
		t.Error("Exists() = true after delete")
	}
	if err := reg.DeleteDevice(ctx, dev.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeleteDevice() twice error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_MarkSeen(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = testDevice("dev-1", "Hallway", "user-1")
	reg := NewRegistry(repo)
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return fixed }
	ctx := context.Background()

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if err := reg.MarkSeen(ctx, "dev-1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	got, _ := reg.GetDevice(ctx, "dev-1")
	if !got.IsOnline || got.LastSeen == nil || !got.LastSeen.Equal(fixed) {
		t.Errorf("cached device after MarkSeen = %+v", got)
	}
	if stats := reg.GetStats(); stats.OnlineDevices != 1 || stats.ByType[TypeESP8266] != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}

	if err := reg.MarkSeen(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("MarkSeen(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dev := &Device{Name: "board", UserID: "user-1"}
			if err := reg.CreateDevice(ctx, dev); err != nil {
				t.Errorf("CreateDevice() error = %v", err)
				return
			}
			_ = reg.MarkSeen(ctx, dev.ID)
			_, _ = reg.ListDevices(ctx)
			_ = reg.GetStats()
		}()
	}
	wg.Wait()

	if reg.GetDeviceCount() != 20 {
		t.Errorf("GetDeviceCount() = %d, want 20", reg.GetDeviceCount())
	}
}
