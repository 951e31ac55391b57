package redis

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homestate-core/internal/infrastructure/config"
	"github.com/nerrad567/homestate-core/internal/state"
)

const testAddr = "127.0.0.1:6379"

func testConfig() config.RedisConfig {
	return config.RedisConfig{
		Enabled: true,
		Addr:    testAddr,
		Channel: "homestate:test",
	}
}

// connectOrSkip connects to a local Redis, skipping when none is running.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testAddr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no Redis at %s: %v", testAddr, err)
	}
	conn.Close()

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:1"
	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_ClosedOperations(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	if err := c.Publish(ctx, "ch", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v", err)
	}
	if err := c.Subscribe(ctx, "ch", func([]byte) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v", err)
	}
	if err := c.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClient_PublishSubscribe(t *testing.T) {
	client := connectOrSkip(t)
	channel := "homestate:test:" + uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, channel, func(p []byte) { got <- string(p) })
	}()

	// Publish until the subscriber is registered.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case payload := <-got:
			if payload != "hello" {
				t.Errorf("payload = %q, want hello", payload)
			}
			break wait
		case <-tick.C:
			if err := client.Publish(ctx, channel, []byte("hello")); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
		case <-deadline:
			t.Fatal("message not received")
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Subscribe() returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

// TestClient_AsFeed wires two managers through one channel the way two
// core instances share a feed.
func TestClient_AsFeed(t *testing.T) {
	client := connectOrSkip(t)
	channel := "homestate:test:" + uuid.NewString()

	feed := state.NewBusFeed(client, channel, nil)
	n := state.Notification{Origin: "other", State: state.DeviceState{DeviceID: "esp-1", LightOn: true, LastUpdated: time.Now().UTC()}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan state.Notification, 1)
	go feed.Subscribe(ctx, func(n state.Notification) { //nolint:errcheck // ends with ctx
		select {
		case got <- n:
		default:
		}
	})

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case recv := <-got:
			if recv.Origin != "other" || !recv.State.LightOn {
				t.Errorf("notification = %+v", recv)
			}
			return
		case <-tick.C:
			if err := feed.Publish(ctx, n); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
		case <-deadline:
			t.Fatal("notification not received")
		}
	}
}
