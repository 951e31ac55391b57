// HomeState Core - device state fan-out service.
//
// This is the main entry point for the HomeState Core application. It keeps
// the door, light, electricity and motion state of every registered device
// and pushes each change to HTTP clients (SSE and WebSocket), MQTT devices,
// telemetry and peer instances.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/homestate-core/migrations"

	"github.com/nerrad567/homestate-core/internal/api"
	"github.com/nerrad567/homestate-core/internal/device"
	"github.com/nerrad567/homestate-core/internal/devicelink"
	"github.com/nerrad567/homestate-core/internal/infrastructure/config"
	"github.com/nerrad567/homestate-core/internal/infrastructure/database"
	"github.com/nerrad567/homestate-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homestate-core/internal/infrastructure/logging"
	"github.com/nerrad567/homestate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homestate-core/internal/infrastructure/redis"
	"github.com/nerrad567/homestate-core/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

const (
	historyRetention     = 30 * 24 * time.Hour
	historyPruneInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Deferred cleanups run in reverse start order, so producers stop before
// the stores they write to.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting HomeState Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	history := device.NewSQLiteStateHistoryRepository(db.DB)

	// Redis change feed (optional)
	var redisClient *redis.Client
	var feed state.Feed
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		feed = state.NewBusFeed(redisClient, cfg.Redis.Channel, log.With("component", "feed"))
		log.Info("Redis connected", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	} else {
		log.Info("Redis feed disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT connection lost", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// State channels
	states := state.NewManager(state.NewSQLiteStore(db.DB), state.Options{
		CacheTTL:       cfg.State.CacheTTLDuration(),
		ObserverBuffer: cfg.State.ObserverBuffer,
		OnStateRead:    registry.MarkSeen,
		Feed:           feed,
		Logger:         log.With("component", "state"),
	})
	defer func() {
		log.Info("stopping state observers")
		states.Close()
	}()

	if err := states.Observe("history", history.Observer(device.StateHistorySourceAPI)); err != nil {
		return fmt.Errorf("attaching history observer: %w", err)
	}
	if influxClient != nil {
		if err := states.Observe("influxdb", influxClient.WriteStateSnapshot); err != nil {
			return fmt.Errorf("attaching telemetry observer: %w", err)
		}
	}
	if err := states.Start(ctx); err != nil {
		return fmt.Errorf("starting state feed: %w", err)
	}

	if mqttClient != nil {
		link, linkErr := devicelink.New(devicelink.Options{
			Broker:  mqttClient,
			States:  states,
			Devices: registry,
			QoS:     mqttClient.QoS(),
			Logger:  log.With("component", "devicelink"),
		})
		if linkErr != nil {
			return fmt.Errorf("creating device link: %w", linkErr)
		}
		if err := link.Start(); err != nil {
			return fmt.Errorf("starting device link: %w", err)
		}
		defer func() {
			log.Info("stopping device link")
			link.Stop()
		}()
		if err := states.Observe("mqtt", link.PublishState); err != nil {
			return fmt.Errorf("attaching mqtt observer: %w", err)
		}
		log.Info("device link started")
	}

	go pruneHistory(ctx, history, log)

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Stream:   cfg.Stream,
		Logger:   log.With("component", "api"),
		Registry: registry,
		States:   states,
		History:  history,
		DB:       db,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	if err := healthCheck(ctx, db, mqttClient, influxClient, redisClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Checks HOMESTATE_CONFIG env var first, then falls back to default.
func getConfigPath() string {
	if path := os.Getenv("HOMESTATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled integrations are passed as nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, redisClient *redis.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if redisClient != nil {
		if err := redisClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}

// historyPruner is the subset of the history repository used for retention.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory drops state history older than historyRetention until ctx ends.
func pruneHistory(ctx context.Context, history historyPruner, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := history.PruneHistory(ctx, historyRetention)
			if err != nil {
				log.Error("pruning state history", "error", err)
				continue
			}
			if n > 0 {
				log.Info("state history pruned", "entries", n)
			}
		}
	}
}
