/**
 * Admin web server
 *
 * Read-only JSON endpoints over the store so operators can watch a long
 * fix run without opening the database: per-status counts, item listings
 * filtered by status, and the app user pool. Basic auth when credentials
 * are configured, permissive CORS for the internal dashboard, optional
 * TLS.
 *
 * Author: box-fixer team
 */

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/config"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// Server serves the admin API.
type Server struct {
	cfg  config.WebConfig
	sm   *state.Manager
	log  *logger.Logger
	http *http.Server
}

// NewServer wires the router and handlers.
func NewServer(cfg config.WebConfig, sm *state.Manager, log *logger.Logger) *Server {
	s := &Server{cfg: cfg, sm: sm, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: splitOrigins(cfg.AllowOrigins),
		AllowedMethods: []string{http.MethodGet},
	}).Handler)

	if cfg.Username != "" {
		r.Use(middleware.BasicAuth("box-fixer", map[string]string{
			cfg.Username: cfg.Password,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/items", s.handleItems)
		r.Get("/appusers", s.handleAppUsers)
	})

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("admin server listening",
		"addr", s.cfg.Listen, "tls", s.cfg.CertFile != "")
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		return s.http.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statusResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.sm.FixItems().CountByStatus(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := statusResponse{Counts: make(map[string]int64)}
	for _, c := range counts {
		resp.Counts[c.WorkingStatus.String()] = c.Count
		resp.Total += c.Count
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	var (
		items []*state.FixItem
		err   error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			http.Error(w, "status must be numeric", http.StatusBadRequest)
			return
		}
		items, err = s.sm.FixItems().ByStatus(r.Context(), state.WorkingStatus(status))
	} else {
		items, err = s.sm.FixItems().All(r.Context())
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if items == nil {
		items = []*state.FixItem{}
	}
	s.writeJSON(w, items)
}

func (s *Server) handleAppUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.sm.AppUsers().List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if users == nil {
		users = []*state.AppUser{}
	}
	s.writeJSON(w, users)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error(err, "admin request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
