package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/homestate-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPingTimeout    = 2 * time.Second
)

// Client is a Redis connection used for pub/sub. Safe for concurrent use.
type Client struct {
	rdb *goredis.Client
	cfg config.RedisConfig

	closed bool
	mu     sync.RWMutex
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{rdb: rdb, cfg: cfg}, nil
}

// Publish sends payload to channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if !c.isOpen() {
		return ErrNotConnected
	}
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers every message on channel to handle until ctx is
// cancelled, returning ctx.Err(). It returns once the subscription is
// confirmed or fails; messages are handled on the calling goroutine.
func (c *Client) Subscribe(ctx context.Context, channel string, handle func(payload []byte)) error {
	if !c.isOpen() {
		return ErrNotConnected
	}

	sub := c.rdb.Subscribe(ctx, channel)
	defer sub.Close() //nolint:errcheck // best-effort unsubscribe

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ErrSubscriptionClosed
			}
			handle([]byte(msg.Payload))
		}
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.isOpen() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool. Repeated calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rdb == nil || c.closed {
		return nil
	}
	c.closed = true
	if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}

func (c *Client) isOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rdb != nil && !c.closed
}
