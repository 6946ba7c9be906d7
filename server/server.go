// Package server exposes switch counters as prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"blair"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Server serves /metrics for one switch.
type Server struct {
	addr     string
	registry *prometheus.Registry
	http     *http.Server
}

func New(addr string, sw *blair.Switch) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(sw))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Registry is the private registry the switch collector is registered with.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Run listens on the server's address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	log.WithField("addr", l.Addr().String()).Info("serving metrics")

	errs := make(chan error, 1)

	go func() {
		errs <- s.http.Serve(l)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
