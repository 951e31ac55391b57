package state

import (
	"context"
	"sync"

	"github.com/nerrad567/homestate-core/internal/infrastructure/metrics"
)

// ObserverFunc consumes applied snapshots in the background.
type ObserverFunc func(ctx context.Context, st DeviceState) error

// observer owns a bounded queue drained by one goroutine. When the queue
// is full the oldest snapshot is dropped.
type observer struct {
	name string
	fn   ObserverFunc
	log  Logger

	mu     sync.Mutex
	queue  []DeviceState
	limit  int
	wake   chan struct{}
	closed bool
}

func newObserver(name string, fn ObserverFunc, limit int, log Logger) *observer {
	return &observer{
		name:  name,
		fn:    fn,
		log:   log,
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

func (o *observer) enqueue(st DeviceState) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if len(o.queue) >= o.limit {
		o.queue = o.queue[1:]
		metrics.ObserverDropped.WithLabelValues(o.name).Inc()
	}
	o.queue = append(o.queue, st)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *observer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.closed = true
			o.mu.Unlock()
			return
		case <-o.wake:
		}

		for {
			o.mu.Lock()
			if len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			st := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()

			o.call(ctx, st)
		}
	}
}

func (o *observer) call(ctx context.Context, st DeviceState) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("observer panic", "observer", o.name, "device_id", st.DeviceID, "panic", r)
		}
	}()
	if err := o.fn(ctx, st); err != nil {
		o.log.Warn("observer failed", "observer", o.name, "device_id", st.DeviceID, "error", err)
	}
}
