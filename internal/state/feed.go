package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// Notification carries a snapshot between processes sharing one store.
type Notification struct {
	Origin string      `json:"origin"`
	State  DeviceState `json:"state"`
}

// Feed distributes notifications to every process. Subscribe blocks
// until ctx is cancelled or the feed fails.
type Feed interface {
	Publish(ctx context.Context, n Notification) error
	Subscribe(ctx context.Context, handle func(Notification)) error
}

// Bus is a byte-oriented pub/sub transport. The redis client satisfies it.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handle func(payload []byte)) error
}

// BusFeed encodes notifications as JSON on one bus channel.
type BusFeed struct {
	bus     Bus
	channel string
	log     Logger
}

// NewBusFeed returns a Feed over bus.
func NewBusFeed(bus Bus, channel string, log Logger) *BusFeed {
	if log == nil {
		log = noopLogger{}
	}
	return &BusFeed{bus: bus, channel: channel, log: log}
}

// Publish encodes and sends n.
func (f *BusFeed) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	return f.bus.Publish(ctx, f.channel, payload)
}

// Subscribe decodes incoming payloads and hands them to handle. Payloads
// that do not decode are logged and dropped.
func (f *BusFeed) Subscribe(ctx context.Context, handle func(Notification)) error {
	return f.bus.Subscribe(ctx, f.channel, func(payload []byte) {
		var n Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			f.log.Warn("dropping malformed feed payload", "channel", f.channel, "error", err)
			return
		}
		if n.State.DeviceID == "" {
			f.log.Warn("dropping feed payload without device id", "channel", f.channel)
			return
		}
		handle(n)
	})
}
