package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"gapup-lab/internal/observability"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Metrics         *observability.Metrics
	Logger          zerolog.Logger
}

// Server wraps the echo HTTP server.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	errc   chan error
}

// NewServer creates an echo server with recovery, request logging and,
// when metrics are configured, a /metrics endpoint.
func NewServer(handler *Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(Recover(cfg.Logger))
	e.Use(RequestLogging(cfg.Logger, cfg.Metrics))

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics.Handler()))
	}

	return &Server{
		echo:   e,
		config: cfg,
		errc:   make(chan error, 1),
	}
}

// Start begins listening in the background. Listener failures are
// reported on Err.
func (s *Server) Start() error {
	go func() {
		s.config.Logger.Info().Str("addr", s.config.Addr).Msg("http server listening")
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
	return nil
}

// Err delivers a listener failure after Start.
func (s *Server) Err() <-chan error {
	return s.errc
}

// Stop gracefully shuts down the server within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.config.Logger.Info().Msg("http server stopped")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(c *ServerConfig) {
		c.Addr = addr
	}
}

// WithTimeouts sets read, write and shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithMetrics records request counts and serves /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(c *ServerConfig) {
		c.Metrics = m
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger zerolog.Logger) ServerOption {
	return func(c *ServerConfig) {
		c.Logger = logger
	}
}
