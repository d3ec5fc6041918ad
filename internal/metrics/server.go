// Package metrics serves the Prometheus registry over HTTP.
//
// Counters are registered where they are incremented (the bus registers its
// own); this package only exposes the default registry on /metrics plus a
// /healthz probe.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukelzlz/nanobot/internal/config"
)

// Server exposes /metrics and /healthz on the configured listen address.
type Server struct {
	cfg    config.MetricsConfig
	logger *slog.Logger

	srv      *http.Server
	listener net.Listener
}

// NewServer builds a metrics server. It does not listen until Start.
func NewServer(cfg config.MetricsConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger.With("component", "metrics"),
	}
}

// Start binds the listener and serves in the background. It is a no-op when
// metrics are disabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}

	s.listener = listener
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()

	s.logger.Info("metrics server started", "addr", s.cfg.Listen)
	return nil
}

// Stop shuts the server down, waiting for in-flight scrapes.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	s.srv = nil
	s.listener = nil
	return err
}

// Addr returns the bound address, useful when Listen uses port 0 in tests.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
