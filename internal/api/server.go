// Package api exposes the operator HTTP surface: trade lock/close triggers
// plus activity and status reads for the admin UI.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vault-operator/internal/config"
)

// Server wraps the HTTP listener for the operator API.
type Server struct {
	srv            *http.Server
	allowedOrigins []string
	logger         *slog.Logger
}

// NewServer builds the operator API server with all routes registered.
func NewServer(cfg config.ServerConfig, h *Handlers, logger *slog.Logger) *Server {
	s := &Server{
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/trade/lock", h.HandleLock)
	mux.HandleFunc("POST /api/trade/close", h.HandleClose)
	mux.HandleFunc("GET /api/activity", h.HandleActivity)
	mux.HandleFunc("GET /api/status", h.HandleStatus)
	mux.HandleFunc("GET /health", h.HandleHealth)

	s.srv = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.withCORS(mux),
		ReadTimeout: 15 * time.Second,
		// Lock and close wait for transactions to mine.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// withCORS answers preflight requests and stamps allowed origins. An empty
// allow-list permits any origin (local admin UI during development).
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Payment")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
