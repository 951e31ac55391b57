package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homestate-core/internal/infrastructure/metrics"
)

// Channel is the in-process view of one device. All writes for the device
// pass through it, one at a time.
type Channel struct {
	deviceID string
	store    Store
	subs     *Subscriptions
	ttl      time.Duration
	now      func() time.Time
	log      Logger

	// applied is called with every locally applied snapshot while the
	// write lock is held. It must not block.
	applied func(DeviceState)

	// writeMu serialises read-merge-write-broadcast.
	writeMu sync.Mutex

	// mu guards the cached snapshot.
	mu       sync.RWMutex
	cached   *DeviceState
	cachedAt time.Time
}

func newChannel(deviceID string, store Store, ttl time.Duration, now func() time.Time, log Logger, applied func(DeviceState)) *Channel {
	return &Channel{
		deviceID: deviceID,
		store:    store,
		subs:     NewSubscriptions(deviceID, log),
		ttl:      ttl,
		now:      now,
		log:      log,
		applied:  applied,
	}
}

// DeviceID returns the device this channel serves.
func (c *Channel) DeviceID() string {
	return c.deviceID
}

// Subscriptions exposes the channel's listener table.
func (c *Channel) Subscriptions() *Subscriptions {
	return c.subs
}

// Snapshot returns the cached state when it is fresh and reads the store
// otherwise. A store read that turns out newer than the cache (written by
// another process) is broadcast.
func (c *Channel) Snapshot(ctx context.Context) (DeviceState, error) {
	if st, ok := c.fresh(); ok {
		metrics.StateReads.WithLabelValues("cache").Inc()
		return st, nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// A writer may have refreshed the cache while we waited.
	if st, ok := c.fresh(); ok {
		metrics.StateReads.WithLabelValues("cache").Inc()
		return st, nil
	}

	st, err := c.store.Get(ctx, c.deviceID)
	if err != nil {
		return DeviceState{}, err
	}
	metrics.StateReads.WithLabelValues("store").Inc()

	prev, hadPrev := c.cachedValue()
	c.setCache(st)
	if hadPrev && st.LastUpdated.After(prev.LastUpdated) {
		c.subs.Broadcast(st)
	}
	return st, nil
}

// Apply writes p through the store, caches the result and broadcasts it.
// Nothing is broadcast when the write fails.
func (c *Channel) Apply(ctx context.Context, p Patch) (DeviceState, error) {
	if p.IsEmpty() {
		return DeviceState{}, ErrEmptyUpdate
	}

	start := c.now()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	st, err := c.store.Update(ctx, c.deviceID, p)
	if err != nil {
		metrics.StateUpdates.WithLabelValues(metrics.ResultError).Inc()
		return DeviceState{}, fmt.Errorf("applying update to %s: %w", c.deviceID, err)
	}
	metrics.StateUpdates.WithLabelValues(metrics.ResultOK).Inc()

	c.setCache(st)
	c.subs.Broadcast(st)
	if c.applied != nil {
		c.applied(st)
	}

	metrics.ObserveApplyLatency(start)
	c.log.Debug("state applied", "device_id", c.deviceID, "last_updated", st.LastUpdated)
	return st, nil
}

// SetDoorOpen sets the door flag.
func (c *Channel) SetDoorOpen(ctx context.Context, v bool) (DeviceState, error) {
	return c.Apply(ctx, Patch{DoorOpen: &v})
}

// SetLightOn sets the light flag.
func (c *Channel) SetLightOn(ctx context.Context, v bool) (DeviceState, error) {
	return c.Apply(ctx, Patch{LightOn: &v})
}

// SetElectricityOn sets the electricity flag.
func (c *Channel) SetElectricityOn(ctx context.Context, v bool) (DeviceState, error) {
	return c.Apply(ctx, Patch{ElectricityOn: &v})
}

// SetMotionDetected sets the motion flag.
func (c *Channel) SetMotionDetected(ctx context.Context, v bool) (DeviceState, error) {
	return c.Apply(ctx, Patch{MotionDetected: &v})
}

// ingest adopts a snapshot written elsewhere if it is newer than the cache
// and broadcasts it. It reports whether the snapshot was adopted.
func (c *Channel) ingest(st DeviceState) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if prev, ok := c.cachedValue(); ok && !st.LastUpdated.After(prev.LastUpdated) {
		return false
	}
	c.setCache(st)
	c.subs.Broadcast(st)
	return true
}

func (c *Channel) fresh() (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil {
		return DeviceState{}, false
	}
	if c.ttl > 0 && c.now().Sub(c.cachedAt) >= c.ttl {
		return DeviceState{}, false
	}
	return *c.cached, true
}

func (c *Channel) cachedValue() (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil {
		return DeviceState{}, false
	}
	return *c.cached, true
}

func (c *Channel) setCache(st DeviceState) {
	c.mu.Lock()
	c.cached = &st
	c.cachedAt = c.now()
	c.mu.Unlock()
}
