// Package api provides the HTTP REST API and WebSocket server for Gray Logic Notify.
//
// It serves the auth and entity REST endpoints, the WebSocket endpoint whose
// connect and disconnect events drive the lifecycle handler, the
// /@connections management API and /metrics:
//
//	server, err := api.New(deps)
//	if err := server.Start(ctx); err != nil { ... }
//	defer server.Close()
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/auth"
	"github.com/nerrad567/gray-logic-notify/internal/entity"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-notify/internal/lifecycle"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// LifecycleHandler processes WebSocket connection events.
type LifecycleHandler interface {
	Handle(ctx context.Context, ev lifecycle.Event) lifecycle.Result
}

// HealthChecker is implemented by dependencies reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Delivery  config.DeliveryConfig
	Stage     string
	Logger    *logging.Logger
	Auth      *auth.Service
	Entities  *entity.Service
	Lifecycle LifecycleHandler
	Hub       *Hub
	Database  HealthChecker // optional
	Version   string
}

// Server is the HTTP API server for Gray Logic Notify.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	delivery  config.DeliveryConfig
	stage     string
	logger    *logging.Logger
	auth      *auth.Service
	entities  *entity.Service
	lifecycle LifecycleHandler
	hub       *Hub
	db        HealthChecker
	limiter   *rateLimiter
	version   string
	server    *http.Server
	addr      net.Addr
	cancel    context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Entities == nil {
		return nil, fmt.Errorf("entity service is required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle handler is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("websocket hub is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		delivery:  deps.Delivery,
		stage:     deps.Stage,
		logger:    deps.Logger,
		auth:      deps.Auth,
		entities:  deps.Entities,
		lifecycle: deps.Lifecycle,
		hub:       deps.Hub,
		db:        deps.Database,
		version:   deps.Version,
	}
	if deps.Security.RateLimit.Enabled {
		s.limiter = newRateLimiter(deps.Security.RateLimit)
	}

	return s, nil
}

// Start binds the listen address, starts the WebSocket hub and serves in
// the background. A bind failure is returned directly.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	readTimeout := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.addr = ln.Addr()

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	go s.serve(ln)
	return nil
}

func (s *Server) serve(ln net.Listener) {
	var err error
	if s.cfg.TLS.Enabled {
		s.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		s.logger.Info("API server listening with TLS", "address", s.addr.String(), "cert", s.cfg.TLS.CertFile)
		err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server listening", "address", s.addr.String())
		err = s.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "error", err)
	}
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close stops the hub and drains in-flight requests for up to
// gracefulShutdownTimeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has bound the listener.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
