// Package server exposes the last report over HTTP for health checks,
// Prometheus scraping and ad-hoc inspection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/types"
)

// ReportSource provides the most recent report and the time of the last
// cycle.
type ReportSource interface {
	LastReport() (*types.Report, time.Time)
}

// Server is the status HTTP server.
type Server struct {
	source     ReportSource
	registry   *prometheus.Registry
	listenAddr string
	httpServer *http.Server
}

// New returns a Server reporting on source and listening on listenAddr.
func New(source ReportSource, listenAddr string) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(source))
	return &Server{
		source:     source,
		registry:   reg,
		listenAddr: listenAddr,
	}
}

// Enabled reports whether a listen address was configured.
func (s *Server) Enabled() bool {
	return s.listenAddr != ""
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{DisableCompression: true}))
	return gziphandler.GzipHandler(securityHeadersMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting status server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, msg string, code int) {
	writeJSON(ctx, w, struct {
		Error string `json:"error"`
	}{Error: msg}, code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, lastCycle := s.source.LastReport()
	if report == nil {
		writeJSONError(r.Context(), w, "no report yet", http.StatusNotFound)
		return
	}
	writeJSON(r.Context(), w, struct {
		LastCycle time.Time     `json:"lastCycle"`
		Report    *types.Report `json:"report"`
	}{LastCycle: lastCycle, Report: report}, http.StatusOK)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
