package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/remiblancher/certwizard/internal/api/router"
	"github.com/remiblancher/certwizard/internal/api/service"
)

// sweepDivisor sets the sweep interval relative to the idle timeout.
const sweepDivisor = 4

// Server represents the HTTP server.
type Server struct {
	cfg      *Config
	version  string
	sessions *service.SessionService
	logger   zerolog.Logger
	srv      *http.Server
}

// New creates a new Server.
func New(cfg *Config, version string, sessions *service.SessionService, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		version:  version,
		sessions: sessions,
		logger:   logger,
	}
}

// Handler returns the routed handler. Cleartext listeners also accept
// HTTP/2 with prior knowledge.
func (s *Server) Handler() http.Handler {
	handler := router.New(&router.Config{
		Version:  s.version,
		Sessions: s.sessions,
		Logger:   s.logger,
	})
	if s.cfg.TLSEnabled() {
		return handler
	}
	return h2c.NewHandler(handler, &http2.Server{IdleTimeout: s.cfg.IdleTimeout})
}

// Start serves until SIGINT, SIGTERM or ctx cancellation, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.logger.WithContext(context.Background()) },
	}

	sweepCtx, cancelSweep := context.WithCancel(s.logger.WithContext(ctx))
	defer cancelSweep()
	if s.cfg.SessionIdleTimeout > 0 {
		go s.sessions.Run(sweepCtx, s.cfg.SessionIdleTimeout/sweepDivisor, s.cfg.SessionIdleTimeout)
	}

	errChan := make(chan error, 1)
	go func() {
		if s.cfg.TLSEnabled() {
			errChan <- s.srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- s.srv.Serve(ln)
		}
	}()

	s.logger.Info().
		Str("version", s.version).
		Str("address", ln.Addr().String()).
		Bool("tls", s.cfg.TLSEnabled()).
		Msg("certwizard API server started")

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down")
		return s.shutdown()
	}
}

// shutdown gracefully stops the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info().Msg("server stopped gracefully")
	return nil
}
