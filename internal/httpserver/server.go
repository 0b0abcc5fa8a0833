package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
	// cancel ends every request context, releasing long-lived event streams
	// so Shutdown does not wait on them.
	cancel context.CancelFunc
}

// New constructs a server listening on the provided port.
func New(port int, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())

	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		cancel: cancel,
	}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown stops accepting connections, ends open streams and waits for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.inner.Shutdown(ctx)
}
