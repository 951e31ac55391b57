package state

import (
	"fmt"
	"sync"

	"github.com/nerrad567/homestate-core/internal/infrastructure/metrics"
)

// Listener receives every snapshot broadcast for a device. It must not
// block; transports queue the snapshot and return.
type Listener func(DeviceState) error

// CancelFunc removes the registration it was returned for. It is safe to
// call more than once.
type CancelFunc func()

type registration struct {
	gen uint64
	fn  Listener
}

// Subscriptions is the listener table of one device.
type Subscriptions struct {
	deviceID string
	log      Logger

	mu      sync.RWMutex
	entries map[string]registration
	nextGen uint64
}

// NewSubscriptions returns an empty table for deviceID.
func NewSubscriptions(deviceID string, log Logger) *Subscriptions {
	if log == nil {
		log = noopLogger{}
	}
	return &Subscriptions{
		deviceID: deviceID,
		log:      log,
		entries:  make(map[string]registration),
	}
}

// Subscribe registers fn under id, replacing an earlier registration with
// the same id. The returned CancelFunc removes this registration only; it
// does nothing once id has been re-registered.
func (s *Subscriptions) Subscribe(id string, fn Listener) CancelFunc {
	s.mu.Lock()
	s.nextGen++
	gen := s.nextGen
	s.entries[id] = registration{gen: gen, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if cur, ok := s.entries[id]; ok && cur.gen == gen {
				delete(s.entries, id)
			}
			s.mu.Unlock()
		})
	}
}

// Unsubscribe removes whatever is registered under id.
func (s *Subscriptions) Unsubscribe(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of registrations.
func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Broadcast hands st to every listener and returns how many accepted it.
// A listener that errors or panics is logged and skipped.
func (s *Subscriptions) Broadcast(st DeviceState) int {
	s.mu.RLock()
	if len(s.entries) == 0 {
		s.mu.RUnlock()
		return 0
	}
	ids := make([]string, 0, len(s.entries))
	fns := make([]Listener, 0, len(s.entries))
	for id, reg := range s.entries {
		ids = append(ids, id)
		fns = append(fns, reg.fn)
	}
	s.mu.RUnlock()

	metrics.Broadcasts.Inc()

	delivered := 0
	for i, fn := range fns {
		if err := s.deliver(fn, st); err != nil {
			metrics.ListenerFailures.Inc()
			s.log.Warn("subscriber rejected snapshot",
				"device_id", s.deviceID,
				"subscriber_id", ids[i],
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (s *Subscriptions) deliver(fn Listener, st DeviceState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return fn(st)
}
