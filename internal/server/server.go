// Package server exposes the health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/backup"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/jonboulle/clockwork"
)

const shutdownTimeout = 5 * time.Second

// Authorizer re-runs the service-account handshake
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// StatusSource provides cycle state snapshots
type StatusSource interface {
	Snapshot() backup.Snapshot
}

// Options configures a Server
type Options struct {
	Port   int
	Auth   Authorizer
	Status StatusSource
	Clock  clockwork.Clock
	Logger logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logging.NewNoOpLogger()
	}
	return o
}

type Server struct {
	server *http.Server
	logger logging.Logger
}

func New(opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		logger: opts.Logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           SetupRoutes(opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server listening", logging.F("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	s.logger.Info("Health server stopped")
	return nil
}
