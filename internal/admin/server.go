// Package admin serves a read-mostly HTTP API over the server counters and
// the tables stored under the root path.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/server"
	"github.com/user/skyd/internal/session"
	"github.com/user/skyd/internal/types"
)

const defaultEventLimit = 200

// StatsFunc returns the current server counters.
type StatsFunc func() server.Stats

// Server is the admin HTTP handler.
type Server struct {
	root   string
	engine types.Engine
	stats  StatsFunc
	logger *slog.Logger
	token  string
	mux    *http.ServeMux
}

type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every route except
// /health.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

func NewServer(root string, engine types.Engine, stats StatsFunc, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		root:   root,
		engine: engine,
		stats:  stats,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /api/databases/{database}/tables/{table}/stats", s.handleTableStats)
	s.mux.HandleFunc("GET /api/databases/{database}/tables/{table}/events", s.handleTableEvents)
	s.mux.HandleFunc("GET /api/databases/{database}/tables/{table}/actions", s.handleListActions)
	s.mux.HandleFunc("POST /api/databases/{database}/tables/{table}/actions", s.handleCreateAction)
	s.mux.HandleFunc("GET /api/databases/{database}/tables/{table}/properties", s.handleListProperties)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.URL.Path != "/health" && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("admin API listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("admin API: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown admin API: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "server stats not available")
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}

// withTable runs fn against an existing table and writes its result with
// code once the table session has been closed.
func (s *Server) withTable(w http.ResponseWriter, r *http.Request, code int, fn func(types.Table) (any, error)) {
	database := r.PathValue("database")
	table := r.PathValue("table")
	if protocol.ValidName(database) != nil || protocol.ValidName(table) != nil {
		writeError(w, http.StatusBadRequest, "invalid database or table name")
		return
	}
	if _, err := os.Stat(filepath.Join(s.root, database, table)); err != nil {
		writeError(w, http.StatusNotFound, "table not found")
		return
	}

	var out any
	err := session.With(r.Context(), s.engine, s.root, database, table, func(sess *session.Session) error {
		var err error
		out, err = fn(sess.Table)
		return err
	})
	switch {
	case err == nil:
		writeJSON(w, code, out)
	case errors.Is(err, types.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("admin table request failed", "database", database, "table", table, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleTableStats(w http.ResponseWriter, r *http.Request) {
	s.withTable(w, r, http.StatusOK, func(t types.Table) (any, error) {
		return t.Stats(r.Context())
	})
}

func (s *Server) handleTableEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	s.withTable(w, r, http.StatusOK, func(t types.Table) (any, error) {
		events, err := t.Events(r.Context(), limit)
		if events == nil {
			events = []*types.Event{}
		}
		return events, err
	})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	s.withTable(w, r, http.StatusOK, func(t types.Table) (any, error) {
		actions, err := t.Actions(r.Context())
		if actions == nil {
			actions = []*types.Action{}
		}
		return actions, err
	})
}

type createActionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var req createActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s.withTable(w, r, http.StatusCreated, func(t types.Table) (any, error) {
		return t.CreateAction(r.Context(), req.Name)
	})
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	s.withTable(w, r, http.StatusOK, func(t types.Table) (any, error) {
		props, err := t.Properties(r.Context())
		if props == nil {
			props = []*types.Property{}
		}
		return props, err
	})
}
