package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homestate-core/internal/infrastructure/metrics"
	"github.com/nerrad567/homestate-core/internal/state"
)

// Sink writes framed messages to one client.
type Sink interface {
	// Send writes the bundle and flushes it to the client.
	Send(events []Event) error
	// Ping writes a keep-alive that clients ignore.
	Ping() error
}

// Subscriber registers state listeners. *state.Manager satisfies it.
type Subscriber interface {
	Subscribe(deviceID, subscriberID string, fn state.Listener) state.CancelFunc
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SessionOptions tunes a Session.
type SessionOptions struct {
	Heartbeat time.Duration
	Buffer    int
	Transport string // metrics label, e.g. "sse"
	Logger    Logger
	Clock     func() time.Time
}

// Session streams one device's snapshots to one client.
//
// Lifecycle: NewSession subscribes, Run sends the initial bundle and then
// every queued snapshot until the context ends or a write fails, and
// Close unsubscribes. Snapshots not newer than the last one sent are
// skipped, so a change racing the initial read is sent once.
type Session struct {
	id       string
	deviceID string
	sink     Sink
	opts     SessionOptions
	cancel   state.CancelFunc

	mu     sync.Mutex
	queue  []state.DeviceState
	closed bool
	wake   chan struct{}
}

// NewSession subscribes a new session to deviceID.
func NewSession(sub Subscriber, deviceID string, sink Sink, opts SessionOptions) *Session {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if opts.Transport == "" {
		opts.Transport = "sse"
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Session{
		id:       uuid.NewString(),
		deviceID: deviceID,
		sink:     sink,
		opts:     opts,
		wake:     make(chan struct{}, 1),
	}
	s.cancel = sub.Subscribe(deviceID, s.id, s.offer)
	return s
}

// ID returns the subscriber id the session registered under.
func (s *Session) ID() string {
	return s.id
}

// Run sends initial and then streams changes. It returns nil when ctx
// ends and the write error when the client can no longer be reached. The
// session is closed on return.
func (s *Session) Run(ctx context.Context, initial state.DeviceState) error {
	defer s.Close()

	active := metrics.ActiveStreams.WithLabelValues(s.opts.Transport)
	active.Inc()
	defer active.Dec()

	log := s.opts.Logger
	log.Debug("stream opened", "device_id", s.deviceID, "subscriber_id", s.id, "transport", s.opts.Transport)
	defer log.Debug("stream closed", "device_id", s.deviceID, "subscriber_id", s.id)

	if err := s.send(initial); err != nil {
		return s.writeFailed(err)
	}
	last := initial.LastUpdated

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.wake:
			for _, st := range s.drain() {
				if !st.LastUpdated.After(last) {
					continue
				}
				if err := s.send(st); err != nil {
					return s.writeFailed(err)
				}
				last = st.LastUpdated
			}

		case <-ticker.C:
			if err := s.sink.Ping(); err != nil {
				return s.writeFailed(err)
			}
		}
	}
}

// Close unsubscribes. Later broadcasts are refused with ErrStreamClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
}

// offer is the state.Listener; it only enqueues.
func (s *Session) offer(st state.DeviceState) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if len(s.queue) >= s.opts.Buffer {
		s.queue = s.queue[1:]
		metrics.StreamDropped.WithLabelValues(s.opts.Transport).Inc()
	}
	s.queue = append(s.queue, st)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Session) drain() []state.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

func (s *Session) send(st state.DeviceState) error {
	events, err := Frames(st, s.opts.Clock())
	if err != nil {
		return err
	}
	return s.sink.Send(events)
}

func (s *Session) writeFailed(err error) error {
	metrics.StreamWriteErrors.WithLabelValues(s.opts.Transport).Inc()
	s.opts.Logger.Warn("stream write failed",
		"device_id", s.deviceID,
		"subscriber_id", s.id,
		"error", err,
	)
	return err
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
