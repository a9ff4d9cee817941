// Package api exposes editing sessions and stateless validation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"timeplanner/internal/metrics"
	"timeplanner/internal/session"
)

// Config holds HTTP server settings.
type Config struct {
	Addr    string
	APIKeys []string
}

// HTTPServer serves the schedule API.
type HTTPServer struct {
	sessions *session.Store
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	apiKeys  map[string]struct{}
	server   *http.Server
}

// NewHTTPServer wires routes for store.
func NewHTTPServer(cfg Config, store *session.Store, m *metrics.Metrics, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	s := &HTTPServer{
		sessions: store,
		metrics:  m,
		logger:   l,
		apiKeys:  make(map[string]struct{}, len(cfg.APIKeys)),
	}
	for _, k := range cfg.APIKeys {
		if k != "" {
			s.apiKeys[k] = struct{}{}
		}
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/validate", s.handleValidate)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/sessions/{id}/allow", s.handleAllow)
	mux.HandleFunc("PUT /api/sessions/{id}/template", s.handleSetTemplate)
	mux.HandleFunc("POST /api/sessions/{id}/apply-template", s.handleApplyTemplate)
	mux.HandleFunc("POST /api/sessions/{id}/shift", s.handleApplyShift)
	mux.HandleFunc("POST /api/sessions/{id}/break", s.handleApplyBreak)
	mux.HandleFunc("POST /api/sessions/{id}/break-toggle", s.handleToggleBreakAll)

	mux.HandleFunc("POST /api/sessions/{id}/days/{index}/active", s.handleSetDayActive)
	mux.HandleFunc("POST /api/sessions/{id}/days/{index}/break", s.handleToggleBreakForDay)
	mux.HandleFunc("PUT /api/sessions/{id}/days/{index}/queue", s.handleSelectQueue)
	mux.HandleFunc("DELETE /api/sessions/{id}/days/{index}/queue", s.handleClearQueue)

	return s.withAuth(mux)
}

func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	if len(s.apiKeys) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.apiKeys[r.Header.Get("x-api-key")]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
