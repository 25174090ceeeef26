package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps an http.Server bound to a Router's gin engine, with the
// same listen/shutdown lifecycle as the teacher's station server.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server listening on addr (":8000" form).
func NewServer(addr string, router *Router) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router.Engine(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // streaming responses never time out
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully with a 5s timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("httpapi: server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
