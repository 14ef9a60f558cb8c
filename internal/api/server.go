package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/doorgate/internal/audit"
	"github.com/nerrad567/doorgate/internal/gateway"
	"github.com/nerrad567/doorgate/internal/infrastructure/config"
	"github.com/nerrad567/doorgate/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EventReader is the read side of the persistence gateway.
type EventReader interface {
	RecentAccess(ctx context.Context, f gateway.AccessFilter) ([]gateway.StoredAccess, error)
	RecentSystem(ctx context.Context, f gateway.SystemFilter) ([]gateway.StoredSystem, error)
	Counts(ctx context.Context) (gateway.Totals, error)
}

// PublishLister reads the outbound publish journal.
type PublishLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PoolStatser reports connection pool statistics. *database.DB satisfies it.
type PoolStatser interface {
	Stats() sql.DBStats
}

// ConnState reports whether a client is currently connected.
type ConnState interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the admin server.
type Deps struct {
	Config  config.AdminConfig
	Logger  *logging.Logger
	Events  EventReader
	Metrics http.Handler // Prometheus handler; /metrics answers 404 when nil
	Checks  map[string]HealthChecker
	Journal PublishLister // optional; /publishes answers 404 when nil
	DB      PoolStatser   // optional
	MQTT    ConnState     // optional
	Version string
}

// Server is the admin HTTP server.
type Server struct {
	cfg       config.AdminConfig
	logger    *logging.Logger
	events    EventReader
	metrics   http.Handler
	checks    map[string]HealthChecker
	journal   PublishLister
	db        PoolStatser
	mqtt      ConnState
	version   string
	startTime time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Events == nil {
		return nil, errors.New("event reader is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		events:    deps.Events,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		journal:   deps.Journal,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// Binding errors (port in use) are returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	s.logger.Info("admin server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("admin server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down admin server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("admin server not started")
	}

	return nil
}
