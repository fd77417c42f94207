package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tubepilot/backend/internal/logging"
)

// ShutdownTimeout controls how long to wait for in-flight publish runs on shutdown.
var ShutdownTimeout = 30 * time.Second

// Server wraps http.Server with timeouts sized for long multipart uploads.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on port. uploadBudget bounds reading the body
// and writing the response, so it must cover a full publish run.
func New(port int, handler http.Handler, uploadBudget time.Duration) *Server {
	if uploadBudget <= 0 {
		uploadBudget = 10 * time.Second
	}
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       uploadBudget,
			WriteTimeout:      uploadBudget + 10*time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    64 << 10,
		},
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.inner.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.inner.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout. Requests inherit ctx's logger.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := logging.FromContext(ctx)
	s.inner.BaseContext = func(net.Listener) context.Context {
		return logging.WithLogger(context.Background(), logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.inner.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server", slog.Duration("timeout", ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.inner.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
