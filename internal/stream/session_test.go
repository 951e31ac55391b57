package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homestate-core/internal/state"
)

// fakeSink records bundles and can be told to fail.
type fakeSink struct {
	mu      sync.Mutex
	bundles [][]Event
	pings   int
	sendErr error
	pingErr error
	sent    chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: make(chan struct{}, 64)}
}

func (f *fakeSink) Send(events []Event) error {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return f.sendErr
	}
	f.bundles = append(f.bundles, events)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return nil
}

func (f *fakeSink) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeSink) bundleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bundles)
}

func (f *fakeSink) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeSink) waitSent(t *testing.T) {
	t.Helper()
	select {
	case <-f.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bundle")
	}
}

// tableSubscriber adapts a single state.Subscriptions to Subscriber.
type tableSubscriber struct {
	subs *state.Subscriptions
}

func newTableSubscriber() *tableSubscriber {
	return &tableSubscriber{subs: state.NewSubscriptions("dev-1", nil)}
}

func (s *tableSubscriber) Subscribe(_, id string, fn state.Listener) state.CancelFunc {
	return s.subs.Subscribe(id, fn)
}

func at(sec int64) state.DeviceState {
	return state.DeviceState{DeviceID: "dev-1", LastUpdated: time.Unix(sec, 0)}
}

func runSession(t *testing.T, s *Session, initial state.DeviceState) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, initial) }()
	return cancel, done
}

func TestSession_InitialBundleThenChanges(t *testing.T) {
	sub := newTableSubscriber()
	sink := newFakeSink()
	s := NewSession(sub, "dev-1", sink, SessionOptions{Heartbeat: time.Hour})

	cancel, done := runSession(t, s, at(1))
	sink.waitSent(t)

	changed := at(2)
	changed.LightOn = true
	if n := sub.subs.Broadcast(changed); n != 1 {
		t.Fatalf("Broadcast() delivered = %d, want 1", n)
	}
	sink.waitSent(t)

	sink.mu.Lock()
	if len(sink.bundles) != 2 || len(sink.bundles[0]) != 5 || len(sink.bundles[1]) != 5 {
		t.Errorf("bundles = %d, want two bundles of five", len(sink.bundles))
	}
	sink.mu.Unlock()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil on client disconnect", err)
	}
	if sub.subs.Len() != 0 {
		t.Error("subscription left behind after disconnect")
	}
	if err := s.offer(at(3)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("offer() after close error = %v, want ErrStreamClosed", err)
	}
}

func TestSession_SkipsSnapshotsNotNewerThanInitial(t *testing.T) {
	sub := newTableSubscriber()
	sink := newFakeSink()
	s := NewSession(sub, "dev-1", sink, SessionOptions{Heartbeat: time.Hour})

	// Queued between subscribe and the initial read.
	sub.subs.Broadcast(at(5))

	cancel, done := runSession(t, s, at(5))
	defer func() { cancel(); <-done }()
	sink.waitSent(t)

	sub.subs.Broadcast(at(6))
	sink.waitSent(t)

	if got := sink.bundleCount(); got != 2 {
		t.Errorf("bundles = %d, want 2 (initial + newer change)", got)
	}
}

func TestSession_WriteFailureEndsSession(t *testing.T) {
	sub := newTableSubscriber()
	sink := newFakeSink()
	s := NewSession(sub, "dev-1", sink, SessionOptions{Heartbeat: time.Hour})

	cancel, done := runSession(t, s, at(1))
	defer cancel()
	sink.waitSent(t)

	broken := errors.New("broken pipe")
	sink.mu.Lock()
	sink.sendErr = broken
	sink.mu.Unlock()

	sub.subs.Broadcast(at(2))

	select {
	case err := <-done:
		if !errors.Is(err, broken) {
			t.Errorf("Run() error = %v, want broken pipe", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after write failure")
	}
	if sub.subs.Len() != 0 {
		t.Error("subscription left behind after write failure")
	}
}

func TestSession_HeartbeatDetectsDeadPeer(t *testing.T) {
	sub := newTableSubscriber()
	sink := newFakeSink()
	sink.pingErr = errors.New("connection reset")
	s := NewSession(sub, "dev-1", sink, SessionOptions{Heartbeat: 10 * time.Millisecond})

	cancel, done := runSession(t, s, at(1))
	defer cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() error = nil, want ping failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat failure did not end session")
	}
	if sink.pingCount() == 0 {
		t.Error("no heartbeat sent")
	}
	if sub.subs.Len() != 0 {
		t.Error("subscription left behind after heartbeat failure")
	}
}

func TestSession_OverflowDropsOldest(t *testing.T) {
	sub := newTableSubscriber()
	s := NewSession(sub, "dev-1", newFakeSink(), SessionOptions{Buffer: 2})
	defer s.Close()

	for i := int64(1); i <= 4; i++ {
		if err := s.offer(at(i)); err != nil {
			t.Fatalf("offer() error = %v", err)
		}
	}

	queued := s.drain()
	if len(queued) != 2 || queued[0].LastUpdated.Unix() != 3 || queued[1].LastUpdated.Unix() != 4 {
		t.Errorf("queue = %+v, want snapshots 3 and 4", queued)
	}
}
