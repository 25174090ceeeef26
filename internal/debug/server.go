// Package debug mounts an optional, disabled-by-default introspection
// server behind static bearer-token auth. It is never part of the public HLS
// surface: the streaming routes require no authentication at all, but an
// operator who enables DEBUG_MODE gets a small authenticated window into
// live process and workload state.
package debug

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/arung-agamani/denpa-stream/internal/auth"
	"github.com/arung-agamani/denpa-stream/internal/procreg"
	"github.com/arung-agamani/denpa-stream/internal/upstream"
)

// Status reports what the debug server exposes: live process count and
// per-worker load, for an operator diagnosing a stuck stream.
type Status struct {
	ProcessCount int         `json:"process_count"`
	Workloads    map[int]int `json:"workloads"`
}

// Server is the optional authenticated introspection endpoint.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a debug server bound to addr, guarded by a.Middleware,
// reporting on reg and pool. Only one route is mounted: GET /debug/status.
func NewServer(addr string, a *auth.Auth, reg *procreg.Registry, pool *upstream.Pool, workerIDs []int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/status", a.MiddlewareFunc(func(w http.ResponseWriter, r *http.Request) {
		workloads := make(map[int]int, len(workerIDs))
		for _, id := range workerIDs {
			workloads[id] = pool.Workload(id)
		}
		status := Status{
			ProcessCount: reg.Len(),
			Workloads:    workloads,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}))

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start blocks serving the debug endpoint until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("debug: server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
