package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/homestate-core/internal/state"
)

// Devices answers whether a device is registered.
type Devices interface {
	Exists(ctx context.Context, deviceID string) (bool, error)
}

// States is the state side of a stream: the current snapshot plus
// subscriptions. *state.Manager satisfies it.
type States interface {
	Subscriber
	Snapshot(ctx context.Context, deviceID string) (state.DeviceState, error)
}

// Handler serves GET /stream?deviceId=<id> as text/event-stream.
type Handler struct {
	Devices Devices
	States  States
	Options SessionOptions
}

// Open performs the checks shared by every transport and subscribes a
// session. On failure it returns the HTTP status and plain-text message
// to send instead of a stream; the session is nil.
func Open(ctx context.Context, devices Devices, states States, deviceID string, sink Sink, opts SessionOptions) (*Session, state.DeviceState, int, string) {
	if deviceID == "" {
		return nil, state.DeviceState{}, http.StatusBadRequest, "Device ID is required"
	}

	exists, err := devices.Exists(ctx, deviceID)
	if err != nil {
		logger(opts).Error("device lookup failed", "device_id", deviceID, "error", err)
		return nil, state.DeviceState{}, http.StatusInternalServerError, "Internal server error"
	}
	if !exists {
		return nil, state.DeviceState{}, http.StatusNotFound, "Device not found"
	}

	// Subscribe before reading so a change landing in between is queued;
	// Run skips anything not newer than the initial snapshot.
	session := NewSession(states, deviceID, sink, opts)

	initial, err := states.Snapshot(ctx, deviceID)
	if err != nil {
		session.Close()
		if errors.Is(err, state.ErrStateNotFound) {
			return nil, state.DeviceState{}, http.StatusNotFound, "Device not found"
		}
		logger(opts).Error("initial snapshot failed", "device_id", deviceID, "error", err)
		return nil, state.DeviceState{}, http.StatusInternalServerError, "Internal server error"
	}
	return session, initial, http.StatusOK, ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	rc := http.NewResponseController(w)
	sink := &sseSink{w: w, rc: rc}

	opts := h.Options
	opts.Transport = "sse"

	session, initial, status, msg := Open(r.Context(), h.Devices, h.States, deviceID, sink, opts)
	if session == nil {
		http.Error(w, msg, status)
		return
	}

	// The server write timeout would cut the stream; liveness is the
	// heartbeat's job.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger(opts).Debug("clearing write deadline failed", "error", err)
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	_ = session.Run(r.Context(), initial) //nolint:errcheck // logged by the session
}

type sseSink struct {
	w  io.Writer
	rc *http.ResponseController
}

func (s *sseSink) Send(events []Event) error {
	for _, e := range events {
		if _, err := e.WriteTo(s.w); err != nil {
			return err
		}
	}
	return s.rc.Flush()
}

func (s *sseSink) Ping() error {
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

func logger(opts SessionOptions) Logger {
	if opts.Logger == nil {
		return nopLogger{}
	}
	return opts.Logger
}
