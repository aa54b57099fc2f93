package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds how long in-flight scrapes may finish on exit
const shutdownTimeout = 5 * time.Second

// Server exposes a registry in the Prometheus text format
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer creates a server for addr that serves g on /metrics
func NewServer(addr string, g prometheus.Gatherer, log *slog.Logger) *Server {
	s := &Server{log: log.With("component", "metrics")}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes of the metrics server
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Run listens and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("metrics server shutdown failed", "error", err)
		}
	}()

	s.log.Info("serving metrics", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
