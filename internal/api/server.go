package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/auth"
	"github.com/nerrad567/virtfoo-core/internal/device"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/config"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds in-flight requests during Close.
const gracefulShutdownTimeout = 10 * time.Second

// Device is the control-plane surface of an attached device.
type Device interface {
	ID() string
	ShowID() string
	ShowCmd() string
	ShowCount() string
	StoreCmd(input string) (uint32, error)
	Stats() device.Stats
}

// Interrupter injects hardware events. Only the simulated hardware has one.
type Interrupter interface {
	Trigger(bits uint32) bool
}

// HealthChecker is any dependency reported by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the server's collaborators. Journal, Interrupter and Checks
// are optional.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Device      Device
	Journal     device.Journal
	Interrupter Interrupter
	Checks      map[string]HealthChecker
	Version     string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	device      Device
	journal     device.Journal
	interrupter Interrupter
	checks      map[string]HealthChecker
	verifier    *auth.Verifier
	version     string
	startTime   time.Time
	hub         *Hub

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	cancel context.CancelFunc
}

// New validates deps and builds a server. It does not listen until Start.
//
// Returns:
//   - *Server: ready to start; Hub() may be registered as an observer at once
//   - error: if a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		device:      deps.Device,
		journal:     deps.Journal,
		interrupter: deps.Interrupter,
		checks:      deps.Checks,
		version:     deps.Version,
		startTime:   time.Now(),
		hub:         NewHub(deps.Logger),
	}

	if secret := deps.Security.JWT.Secret; secret != "" {
		v, err := auth.NewVerifier(secret, deps.Security.JWT.Issuer)
		if err != nil {
			return nil, fmt.Errorf("building token verifier: %w", err)
		}
		s.verifier = v
	} else {
		s.logger.Warn("no JWT secret configured, write endpoints are unauthenticated")
	}

	return s, nil
}

// Hub returns the WebSocket hub. It implements device.Observer.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: if the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	srvCtx, cancel := context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String())
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close stops the hub and shuts the listener down gracefully.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
