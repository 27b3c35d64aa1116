// Package httpapi exposes a read-only JSON view of migration state: applied
// and pending files, the journal with any sequence collisions, and health.
// It never mutates the database or the migration directory.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"migratekit/internal/flow"
	"migratekit/internal/journal"
)

// Server serves the status API for one engine.
type Server struct {
	addr   string
	engine *flow.Engine
	logger *slog.Logger
}

// New wires a status server.
func New(addr string, engine *flow.Engine, logger *slog.Logger) *Server {
	return &Server{addr: addr, engine: engine, logger: logger}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.health)
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", s.status)
		api.Get("/journal", s.journal)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.engine.DB.Query(ctx, "SELECT 1"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unhealthy", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Status(r.Context(), flow.StatusOptions{})
	if err != nil {
		s.logger.Error("status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}

	applied := make([]map[string]any, 0, len(res.Applied))
	for _, a := range res.Applied {
		applied = append(applied, map[string]any{
			"name":      a.Name,
			"checksum":  a.Checksum,
			"appliedAt": a.AppliedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":       applied,
		"pending":       res.Pending,
		"checksumDrift": res.ChecksumDrift,
	})
}

func (s *Server) journal(w http.ResponseWriter, r *http.Request) {
	ledger, err := journal.Load(s.engine.Files, s.engine.JournalPath)
	if err != nil {
		s.logger.Error("journal read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "journal_failed", err.Error())
		return
	}
	files, err := s.engine.Files.List(s.engine.MigrationsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "journal_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    ledger.Version,
		"migrations": ledger.Migrations,
		"collisions": journal.DetectCollisions(ledger, files),
	})
}
