// Package adminapi serves the operational HTTP surface for a netkit
// process: liveness, prometheus scrape, and a JSON dump of cluster
// membership. It follows the teacher's own StartMetricsServer shape
// (context-driven graceful shutdown over net/http) but routes through
// go-chi instead of a bare ServeMux.
package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netkit/cluster"
)

// NodeLister is the subset of cluster.Registry the /cluster/nodes route
// needs.
type NodeLister interface {
	AllNodes() []cluster.Node
}

// Server wires the admin routes onto an *http.Server.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr, exposing /healthz, /metrics (via
// promhttp scraping reg), and /cluster/nodes (JSON dump of
// nodes.AllNodes()).
func New(addr string, reg *prometheus.Registry, nodes NodeLister) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("adminapi: empty listen address")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.PlainText(w, req, "ok")
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/cluster/nodes", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, nodes.AllNodes())
	})

	return &Server{httpServer: &http.Server{Addr: addr, Handler: r}}, nil
}

// Run blocks serving until ctx is canceled, then shuts down within two
// seconds — the same deadline the teacher's metrics server uses.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("adminapi: serve: %w", err)
	}
	return nil
}
