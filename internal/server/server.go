// Package server exposes the bot engine over HTTP: a JSON API for
// starting and stopping jobs, a WebSocket event stream, and a small
// dashboard page.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"botinsta/pkg/auth"
	"botinsta/pkg/bot"
	"botinsta/pkg/config"
	"botinsta/pkg/hashtags"
	"botinsta/pkg/logger"
)

// AccountStore is the slice of the credential manager the dashboard
// needs: enumerate accounts and remove one.
type AccountStore interface {
	List() ([]*auth.Account, error)
	Delete(username string) error
}

// Server is the dashboard HTTP server
type Server struct {
	cfg        config.ServerConfig
	registry   *bot.Registry
	hashtags   *hashtags.Store
	accounts   AccountStore
	hub        *Hub
	httpServer *http.Server
	logger     logger.Logger
}

// New wires the HTTP surface around an existing registry and hub
func New(cfg config.ServerConfig, registry *bot.Registry, tags *hashtags.Store, accounts AccountStore, hub *Hub, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		hashtags: tags,
		accounts: accounts,
		hub:      hub,
		logger:   log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/bot/start", s.handleStart)
	mux.HandleFunc("POST /api/bot/stop", s.handleStop)
	mux.HandleFunc("GET /api/bot/status", s.handleStatus)
	mux.HandleFunc("GET /api/bot/active", s.handleActive)
	mux.HandleFunc("GET /api/accounts", s.handleAccounts)
	mux.HandleFunc("DELETE /api/accounts/{username}", s.handleAccountRemove)
	mux.HandleFunc("GET /api/hashtags", s.handleHashtagList)
	mux.HandleFunc("POST /api/hashtags", s.handleHashtagAdd)
	mux.HandleFunc("DELETE /api/hashtags/{tag}", s.handleHashtagRemove)
	mux.HandleFunc("GET /ws", s.hub.HandleWS)
	mux.HandleFunc("GET /{$}", s.handleDashboard)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	logger.LogComponentStart("server", map[string]interface{}{
		"addr": s.cfg.Addr,
	})

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains HTTP connections and disconnects WebSocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	logger.LogComponentStop("server", "shutdown requested")
	return err
}

// withLogging logs each request at debug level
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.DebugWithFields("http request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		})
	})
}
