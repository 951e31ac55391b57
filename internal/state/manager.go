package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homestate-core/internal/infrastructure/metrics"
)

const defaultObserverBuffer = 256

// ReadHook runs after every successful snapshot read through the Manager.
// The device registry uses it to mark the device online.
type ReadHook func(ctx context.Context, deviceID string) error

// Options configures a Manager. The zero value is usable.
type Options struct {
	// CacheTTL bounds how long a cached snapshot is served without
	// consulting the store. Zero keeps it until the channel is forgotten.
	CacheTTL time.Duration

	// ObserverBuffer is the queue depth of each observer.
	ObserverBuffer int

	// OnStateRead is invoked after each snapshot read. Its errors are
	// logged and do not fail the read.
	OnStateRead ReadHook

	// Feed, when set, carries applied snapshots to other processes and
	// brings theirs in.
	Feed Feed

	Logger Logger

	// Clock overrides time.Now for cache freshness.
	Clock func() time.Time
}

// Manager owns the per-device channels.
type Manager struct {
	store  Store
	opts   Options
	log    Logger
	origin string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	channels  map[string]*Channel
	observers []*observer
	closed    bool
}

// NewManager returns a Manager reading and writing through store.
func NewManager(store Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ObserverBuffer <= 0 {
		opts.ObserverBuffer = defaultObserverBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		opts:     opts,
		log:      opts.Logger,
		origin:   uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*Channel),
	}
}

// Origin identifies this process on the feed.
func (m *Manager) Origin() string {
	return m.origin
}

// Channel returns the device's channel, creating it on first use.
func (m *Manager) Channel(deviceID string) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[deviceID]; ok {
		return ch
	}
	ch := newChannel(deviceID, m.store, m.opts.CacheTTL, m.opts.Clock, m.log, m.dispatch)
	m.channels[deviceID] = ch
	metrics.Channels.Set(float64(len(m.channels)))
	return ch
}

// Snapshot returns the device's current state and runs the read hook.
func (m *Manager) Snapshot(ctx context.Context, deviceID string) (DeviceState, error) {
	st, err := m.Channel(deviceID).Snapshot(ctx)
	if err != nil {
		return DeviceState{}, err
	}
	if m.opts.OnStateRead != nil {
		if err := m.opts.OnStateRead(ctx, deviceID); err != nil {
			m.log.Warn("state read hook failed", "device_id", deviceID, "error", err)
		}
	}
	return st, nil
}

// Apply writes p to the device and broadcasts the result.
func (m *Manager) Apply(ctx context.Context, deviceID string, p Patch) (DeviceState, error) {
	return m.Channel(deviceID).Apply(ctx, p)
}

// Subscribe registers fn for the device's broadcasts under subscriberID.
func (m *Manager) Subscribe(deviceID, subscriberID string, fn Listener) CancelFunc {
	return m.Channel(deviceID).Subscriptions().Subscribe(subscriberID, fn)
}

// Unsubscribe removes subscriberID from the device if a channel exists.
func (m *Manager) Unsubscribe(deviceID, subscriberID string) {
	m.mu.Lock()
	ch, ok := m.channels[deviceID]
	m.mu.Unlock()
	if ok {
		ch.Subscriptions().Unsubscribe(subscriberID)
	}
}

// Forget drops the device's channel. The next access creates a new one.
func (m *Manager) Forget(deviceID string) {
	m.mu.Lock()
	delete(m.channels, deviceID)
	metrics.Channels.Set(float64(len(m.channels)))
	m.mu.Unlock()
}

// Observe attaches a background consumer of locally applied snapshots.
func (m *Manager) Observe(name string, fn ObserverFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	o := newObserver(name, fn, m.opts.ObserverBuffer, m.log)
	m.observers = append(m.observers, o)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		o.run(m.ctx)
	}()
	return nil
}

// Start connects the feed, if any: local writes are published and remote
// writes are broadcast to local subscribers. It returns once the feed
// subscription is running.
func (m *Manager) Start(ctx context.Context) error {
	if m.opts.Feed == nil {
		return nil
	}

	feed := m.opts.Feed
	if err := m.Observe("feed", func(ctx context.Context, st DeviceState) error {
		metrics.FeedMessages.WithLabelValues("out").Inc()
		return feed.Publish(ctx, Notification{Origin: m.origin, State: st})
	}); err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(m.ctx)
	stop := context.AfterFunc(ctx, cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop()
		defer cancel()
		err := feed.Subscribe(subCtx, m.receive)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("feed subscription ended", "error", err)
		}
	}()
	return nil
}

// Stats reports channel and subscriber counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Channels: len(m.channels), Observers: len(m.observers)}
	for _, ch := range m.channels {
		s.Subscribers += ch.Subscriptions().Len()
	}
	return s
}

// Stats is a point-in-time summary of a Manager.
type Stats struct {
	Channels    int `json:"channels"`
	Subscribers int `json:"subscribers"`
	Observers   int `json:"observers"`
}

// Close stops observers and the feed subscription and waits for them.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) dispatch(st DeviceState) {
	m.mu.Lock()
	observers := m.observers
	m.mu.Unlock()

	for _, o := range observers {
		o.enqueue(st)
	}
}

func (m *Manager) receive(n Notification) {
	if n.Origin == m.origin {
		return
	}
	metrics.FeedMessages.WithLabelValues("in").Inc()

	// Without a local channel there is no cache to refresh and nobody
	// to notify.
	m.mu.Lock()
	ch, ok := m.channels[n.State.DeviceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if ch.ingest(n.State) {
		m.log.Debug("adopted remote state", "device_id", n.State.DeviceID, "origin", n.Origin)
	}
}
