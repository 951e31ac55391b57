package devicelink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homestate-core/internal/infrastructure/metrics"
	"github.com/nerrad567/homestate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homestate-core/internal/state"
)

// applyTimeout bounds the store write for one report.
const applyTimeout = 5 * time.Second

// Report outcomes counted in homestate_device_reports_total.
const (
	resultApplied  = "applied"
	resultRejected = "rejected"
	resultUnknown  = "unknown_device"
	resultError    = "error"
)

var (
	// ErrInvalidReport is returned for payloads that are not a JSON object
	// of boolean state fields.
	ErrInvalidReport = errors.New("devicelink: invalid report")

	// ErrUnknownDevice is returned for reports from unregistered devices.
	ErrUnknownDevice = errors.New("devicelink: unknown device")
)

// Broker is the MQTT surface the link needs. *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// States applies reports. *state.Manager satisfies it.
type States interface {
	Apply(ctx context.Context, deviceID string, p state.Patch) (state.DeviceState, error)
}

// Devices checks registration and records liveness. *device.Registry
// satisfies it.
type Devices interface {
	Exists(ctx context.Context, deviceID string) (bool, error)
	MarkSeen(ctx context.Context, deviceID string) error
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Link.
type Options struct {
	Broker  Broker
	States  States
	Devices Devices
	QoS     byte
	Logger  Logger // optional
}

// Link bridges MQTT device traffic and the state manager.
type Link struct {
	broker  Broker
	states  States
	devices Devices
	qos     byte
	logger  Logger

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// New creates a link. Call Start to subscribe to device reports.
func New(opts Options) (*Link, error) {
	if opts.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if opts.States == nil {
		return nil, errors.New("state manager is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("device registry is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		broker:    opts.Broker,
		states:    opts.States,
		devices:   opts.Devices,
		qos:       opts.QoS,
		logger:    opts.Logger,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to every device report topic.
func (l *Link) Start() error {
	topic := mqtt.Topics{}.AllDeviceReports()
	if err := l.broker.Subscribe(topic, l.qos, l.handleReport); err != nil {
		return fmt.Errorf("subscribe to device reports: %w", err)
	}
	l.logInfo("subscribed to device reports", "topic", topic)
	return nil
}

// Stop unsubscribes and aborts in-flight report writes.
func (l *Link) Stop() {
	l.stopOnce.Do(func() {
		l.ctxCancel()
		if err := l.broker.Unsubscribe(mqtt.Topics{}.AllDeviceReports()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			l.logWarn("unsubscribe from device reports failed", "error", err)
		}
		l.logInfo("device link stopped")
	})
}

// PublishState publishes st retained on the device's state topic. It has
// the state.ObserverFunc signature so it can be attached with
// Manager.Observe.
func (l *Link) PublishState(_ context.Context, st state.DeviceState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", st.DeviceID, err)
	}
	if err := l.broker.Publish(mqtt.Topics{}.DeviceState(st.DeviceID), payload, l.qos, true); err != nil {
		return fmt.Errorf("publishing state for %s: %w", st.DeviceID, err)
	}
	return nil
}

// handleReport applies one device report. Errors are returned for the
// MQTT client to log.
func (l *Link) handleReport(topic string, payload []byte) error {
	kind, deviceID, ok := mqtt.ParseDeviceTopic(topic)
	if !ok || kind != mqtt.KindReport {
		metrics.DeviceReports.WithLabelValues(resultRejected).Inc()
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidReport, topic)
	}

	patch, err := ParseReport(payload)
	if err != nil {
		metrics.DeviceReports.WithLabelValues(resultRejected).Inc()
		return fmt.Errorf("report from %s: %w", deviceID, err)
	}

	ctx, cancel := context.WithTimeout(l.ctx, applyTimeout)
	defer cancel()

	exists, err := l.devices.Exists(ctx, deviceID)
	if err != nil {
		metrics.DeviceReports.WithLabelValues(resultError).Inc()
		return fmt.Errorf("looking up %s: %w", deviceID, err)
	}
	if !exists {
		metrics.DeviceReports.WithLabelValues(resultUnknown).Inc()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	st, err := l.states.Apply(ctx, deviceID, patch)
	if err != nil {
		metrics.DeviceReports.WithLabelValues(resultError).Inc()
		return fmt.Errorf("applying report from %s: %w", deviceID, err)
	}
	metrics.DeviceReports.WithLabelValues(resultApplied).Inc()

	if err := l.devices.MarkSeen(ctx, deviceID); err != nil {
		l.logWarn("marking device seen failed", "device_id", deviceID, "error", err)
	}
	l.logDebug("device report applied", "device_id", deviceID, "last_updated", st.LastUpdated)
	return nil
}

// ParseReport decodes a report payload. Unknown fields are ignored; a
// report must set at least one state field, and only JSON booleans are
// accepted.
func ParseReport(payload []byte) (state.Patch, error) {
	var p state.Patch
	if err := json.Unmarshal(payload, &p); err != nil {
		return state.Patch{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if p.IsEmpty() {
		return state.Patch{}, fmt.Errorf("%w: no state fields", ErrInvalidReport)
	}
	return p, nil
}

func (l *Link) logDebug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Link) logInfo(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Link) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
