package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nerrad567/homestate-core/internal/state"
)

// Message kinds.
const (
	KindState   = "state"
	AllMessages = "all"
)

const (
	defaultReconnectInterval    = 3 * time.Second
	defaultMaxReconnectAttempts = 5
)

// Message is one message received from the stream. For the generic state
// message Data is the inner snapshot object; for typed events it is the
// event's JSON payload.
type Message struct {
	Kind string
	Data json.RawMessage
}

// Handler receives messages.
type Handler func(Message)

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Client. Zero values take the defaults.
type Options struct {
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HTTPClient           *http.Client
	Logger               Logger

	// OnGiveUp is called once reconnecting stops; err wraps ErrGaveUp.
	OnGiveUp func(err error)

	// AfterFunc schedules f after d and returns a stop function. Defaults
	// to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Client follows one device's stream.
type Client struct {
	endpoint string
	deviceID string
	opts     Options

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	stopTimer func() bool
	attempts  int
	connected bool

	handlers  map[string]Handler
	stateSubs map[uint64]func(state.DeviceState)
	nextSub   uint64
	current   state.DeviceState
	hasState  bool
}

// New returns a Client for deviceID on the stream endpoint, for example
// "http://localhost:8080/stream". It does not connect.
func New(endpoint, deviceID string, opts Options) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	return &Client{
		endpoint:  endpoint,
		deviceID:  deviceID,
		opts:      opts,
		handlers:  make(map[string]Handler),
		stateSubs: make(map[uint64]func(state.DeviceState)),
	}
}

// Connect opens the stream, first tearing down any existing connection or
// pending reconnect.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

// Disconnect closes the stream and cancels any pending reconnect. It is a
// no-op when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil && c.stopTimer == nil {
		return
	}
	c.teardownLocked()
	c.gen++
	c.opts.Logger.Info("stream disconnected", "device_id", c.deviceID)
}

// Connected reports whether a stream is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State returns the last snapshot received, if any.
func (c *Client) State() (state.DeviceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasState
}

// AddEventListener registers h for messages of kind, replacing any
// earlier handler for that kind. Use AllMessages to receive everything.
func (c *Client) AddEventListener(kind string, h Handler) {
	c.mu.Lock()
	c.handlers[kind] = h
	c.mu.Unlock()
}

// RemoveEventListener drops the handler for kind.
func (c *Client) RemoveEventListener(kind string) {
	c.mu.Lock()
	delete(c.handlers, kind)
	c.mu.Unlock()
}

// OnMessage registers the handler invoked for every message.
func (c *Client) OnMessage(h Handler) {
	c.AddEventListener(AllMessages, h)
}

// SubscribeToStateChanges calls fn with a full snapshot for every state
// message. The returned function unsubscribes.
func (c *Client) SubscribeToStateChanges(fn func(state.DeviceState)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.stateSubs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

func (c *Client) connectLocked() {
	c.teardownLocked()
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx, gen)
}

func (c *Client) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.connected = false
}

func (c *Client) run(ctx context.Context, gen uint64) {
	err := c.stream(ctx, gen)
	if ctx.Err() != nil {
		return
	}
	c.fail(gen, err)
}

func (c *Client) stream(ctx context.Context, gen uint64) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	q.Set("deviceId", c.deviceID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	c.opened(gen)

	if err := parseStream(resp.Body, func(ev rawEvent) { c.dispatch(gen, ev) }); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return ErrStreamEnded
}

func (c *Client) opened(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.attempts = 0
	c.connected = true
	c.opts.Logger.Info("stream connected", "device_id", c.deviceID)
}

// fail handles a stream-level error on connection gen.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.opts.Logger.Warn("stream error", "device_id", c.deviceID, "error", err)
	c.teardownLocked()
	c.reconnectLocked(err)
}

func (c *Client) reconnectLocked(cause error) {
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.opts.Logger.Error("max reconnect attempts reached, giving up",
			"device_id", c.deviceID, "attempts", c.attempts)
		if c.opts.OnGiveUp != nil {
			giveUp := c.opts.OnGiveUp
			err := fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, c.attempts, cause)
			go giveUp(err)
		}
		return
	}

	c.attempts++
	delay := c.opts.ReconnectInterval * time.Duration(1<<(c.attempts-1))
	gen := c.gen

	c.opts.Logger.Info("reconnecting", "device_id", c.deviceID, "attempt", c.attempts, "delay", delay)
	c.stopTimer = c.opts.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// Connect or Disconnect since scheduling supersedes this retry.
		if gen != c.gen {
			return
		}
		c.stopTimer = nil
		c.connectLocked()
	})
}

type stateEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type statePayload struct {
	DoorOpen       bool   `json:"doorOpen"`
	LightOn        bool   `json:"lightOn"`
	ElectricityOn  bool   `json:"electricityOn"`
	MotionDetected bool   `json:"motionDetected"`
	LastUpdated    string `json:"lastUpdated"`
}

func (c *Client) dispatch(gen uint64, ev rawEvent) {
	msg, err := decode(ev)
	if err != nil {
		c.opts.Logger.Warn("dropping undecodable message", "device_id", c.deviceID, "event", ev.Event, "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	var subs []func(state.DeviceState)
	var snapshot state.DeviceState
	if msg.Kind == KindState {
		snapshot, err = c.toState(msg.Data)
		if err != nil {
			c.mu.Unlock()
			c.opts.Logger.Warn("dropping malformed state", "device_id", c.deviceID, "error", err)
			return
		}
		c.current, c.hasState = snapshot, true
		for _, fn := range c.stateSubs {
			subs = append(subs, fn)
		}
	}
	handler := c.handlers[msg.Kind]
	all := c.handlers[AllMessages]
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	if handler != nil {
		handler(msg)
	}
	if all != nil {
		all(msg)
	}
}

func decode(ev rawEvent) (Message, error) {
	if ev.Event != "" && ev.Event != "message" {
		if !json.Valid([]byte(ev.Data)) {
			return Message{}, errors.New("invalid JSON payload")
		}
		return Message{Kind: ev.Event, Data: json.RawMessage(ev.Data)}, nil
	}

	var env stateEnvelope
	if err := json.Unmarshal([]byte(ev.Data), &env); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	if env.Type == "" {
		return Message{}, errors.New("message without type")
	}
	return Message{Kind: env.Type, Data: env.Data}, nil
}

func (c *Client) toState(data json.RawMessage) (state.DeviceState, error) {
	var p statePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return state.DeviceState{}, err
	}
	st := state.DeviceState{
		DeviceID:       c.deviceID,
		DoorOpen:       p.DoorOpen,
		LightOn:        p.LightOn,
		ElectricityOn:  p.ElectricityOn,
		MotionDetected: p.MotionDetected,
	}
	if p.LastUpdated != "" {
		t, err := time.Parse(time.RFC3339Nano, p.LastUpdated)
		if err != nil {
			return state.DeviceState{}, fmt.Errorf("parsing lastUpdated: %w", err)
		}
		st.LastUpdated = t
	}
	return st, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
