// Package metrics runs the Prometheus exposition endpoint on its own
// port, grounded on explorer/indexer/internal/metrics/server.go's
// nil-safe wrapper: a zero port means metrics are disabled, and every
// method is safe to call on a nil *Server.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes GET /metrics in Prometheus exposition format.
type Server struct {
	srv *http.Server
}

// NewServer returns nil when port is 0, so callers can treat a disabled
// metrics server exactly like an enabled one (Start/Stop are no-ops).
func NewServer(port int) *Server {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{srv: &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}}
}

func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
