// Package httpapi exposes the process's healthz/readyz/metrics HTTP
// surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BusStatus abstracts the telemetry-export producer's connectivity
// for testability.
type BusStatus interface {
	IsReady() bool
}

// DBChecker abstracts the journal pool's health check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	srv       *http.Server
	dbChecker DBChecker
	bus       BusStatus
	logger    *zap.Logger
}

// NewServer wires /healthz, /readyz and /metrics. Either dbChecker or
// bus may be nil — the readiness check treats a nil collaborator as
// "not configured", which is itself healthy since the journal and the
// telemetry bus are both optional per SPEC_FULL.md §6.
func NewServer(addr string, dbChecker DBChecker, bus BusStatus, logger *zap.Logger) *Server {
	s := &Server{dbChecker: dbChecker, bus: bus, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.dbChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.dbChecker.Ping(ctx); err != nil {
			checks["journal"] = "error"
			allOK = false
		} else {
			checks["journal"] = "ok"
		}
	} else {
		checks["journal"] = "not_configured"
	}

	if s.bus != nil {
		if s.bus.IsReady() {
			checks["bus"] = "ok"
		} else {
			checks["bus"] = "error"
			allOK = false
		}
	} else {
		checks["bus"] = "not_configured"
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
