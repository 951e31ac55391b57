// homestate-watch follows one device's state stream and prints every
// snapshot it receives as a JSON line on stdout.
//
//	homestate-watch -server http://localhost:8080 -device front-door
//
// It reconnects with exponential backoff and exits non-zero once the
// client gives up.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/homestate-core/internal/infrastructure/config"
	"github.com/nerrad567/homestate-core/internal/infrastructure/logging"
	"github.com/nerrad567/homestate-core/internal/state"
	"github.com/nerrad567/homestate-core/internal/streamclient"
)

var version = "dev"

type options struct {
	server    string
	deviceID  string
	events    bool
	interval  time.Duration
	attempts  int
	logLevel  string
	logFormat string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("homestate-watch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.server, "server", "http://localhost:8080", "HomeState Core base URL")
	fs.StringVar(&o.deviceID, "device", "", "device ID to follow (required)")
	fs.BoolVar(&o.events, "events", false, "print typed events as well as snapshots")
	fs.DurationVar(&o.interval, "reconnect-interval", 3*time.Second, "base reconnect delay")
	fs.IntVar(&o.attempts, "max-attempts", 5, "consecutive failed reconnects before giving up")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "text", "log format (text, json)")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.deviceID == "" {
		fmt.Fprintln(errOut, "-device is required")
		fs.Usage()
		return o, errors.New("missing -device")
	}
	return o, nil
}

// streamURL joins the base server URL and the stream path.
func streamURL(server string) string {
	return strings.TrimRight(server, "/") + "/stream"
}

// run follows the stream until ctx ends or the client gives up.
func run(ctx context.Context, o options, out, errOut io.Writer) error {
	log := logging.NewWithWriter(config.LoggingConfig{
		Level:  o.logLevel,
		Format: o.logFormat,
	}, version, errOut)

	gaveUp := make(chan error, 1)
	client := streamclient.New(streamURL(o.server), o.deviceID, streamclient.Options{
		ReconnectInterval:    o.interval,
		MaxReconnectAttempts: o.attempts,
		Logger:               log.With("device_id", o.deviceID),
		OnGiveUp: func(err error) {
			gaveUp <- err
		},
	})

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	write := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(v); err != nil {
			log.Error("writing output", "error", err)
		}
	}

	unsubscribe := client.SubscribeToStateChanges(func(st state.DeviceState) {
		write(st)
	})
	defer unsubscribe()

	if o.events {
		for _, attr := range state.Attributes {
			event := attr.Event()
			client.AddEventListener(event, func(m streamclient.Message) {
				write(struct {
					Event string          `json:"event"`
					Data  json.RawMessage `json:"data"`
				}{Event: event, Data: m.Data})
			})
		}
	}

	client.Connect()
	defer client.Disconnect()

	select {
	case <-ctx.Done():
		return nil
	case err := <-gaveUp:
		return err
	}
}
