package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nerrad567/homestate-core/internal/device"
	"github.com/nerrad567/homestate-core/internal/infrastructure/config"
	"github.com/nerrad567/homestate-core/internal/infrastructure/database"
	"github.com/nerrad567/homestate-core/internal/infrastructure/logging"
	"github.com/nerrad567/homestate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homestate-core/internal/state"
	"github.com/nerrad567/homestate-core/internal/stream"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Stream   config.StreamConfig
	Logger   *logging.Logger
	Registry *device.Registry
	States   *state.Manager
	History  device.StateHistoryRepository // optional
	DB       *database.DB                  // optional, for metrics
	MQTT     *mqtt.Client                  // optional, for metrics
	Version  string
}

// Server is the HTTP API server for HomeState Core.
type Server struct {
	cfg       config.APIConfig
	streamCfg config.StreamConfig
	logger    *logging.Logger
	registry  *device.Registry
	states    *state.Manager
	history   device.StateHistoryRepository
	db        *database.DB
	mqtt      *mqtt.Client
	version   string

	sse       *stream.Handler
	wsClients atomic.Int64
	startTime time.Time

	// ctx is the base context of every request; Close cancels it so that
	// open streams end before shutdown waits on them.
	ctx    context.Context
	cancel context.CancelFunc
	server *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if deps.States == nil {
		return nil, errors.New("state manager is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       deps.Config,
		streamCfg: deps.Stream,
		logger:    deps.Logger,
		registry:  deps.Registry,
		states:    deps.States,
		history:   deps.History,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.sse = &stream.Handler{
		Devices: deps.Registry,
		States:  deps.States,
		Options: s.sessionOptions("sse"),
	}
	return s, nil
}

func (s *Server) sessionOptions(transport string) stream.SessionOptions {
	return stream.SessionOptions{
		Heartbeat: s.streamCfg.HeartbeatPeriod(),
		Buffer:    s.streamCfg.SendBuffer,
		Transport: transport,
		Logger:    s.logger.With("component", transport),
	}
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close ends open streams and gracefully shuts down the listener, waiting
// up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.cancel()
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
