// Package server exposes the gateway over HTTP: authentication,
// query submission, read-only reports, and health.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/querygate/querygate/internal/auth"
	"github.com/querygate/querygate/internal/gateway"
	"github.com/querygate/querygate/internal/policy"
	"github.com/querygate/querygate/internal/ratelimit"
	"github.com/querygate/querygate/internal/store"
)

const (
	loginAttemptLimit  = 5
	loginAttemptWindow = time.Minute
)

// Config holds HTTP server configuration.
type Config struct {
	Addr string
	// RulesPath is the policy rules file watched for hot reload.
	RulesPath string
}

// Server routes HTTP requests to the gateway and reports.
type Server struct {
	gw       *gateway.Gateway
	reports  *store.Reports
	verifier auth.Verifier
	issuer   *auth.Issuer
	logins   *ratelimit.Limiter
	log      zerolog.Logger
	cfg      Config

	httpServer *http.Server
}

// New wires the router. All dependencies are injected; the server owns
// none of them except the http.Server itself.
func New(cfg Config, gw *gateway.Gateway, reports *store.Reports, verifier auth.Verifier, issuer *auth.Issuer, log zerolog.Logger) *Server {
	s := &Server{
		gw:       gw,
		reports:  reports,
		verifier: verifier,
		issuer:   issuer,
		logins:   ratelimit.New(loginAttemptLimit, loginAttemptWindow),
		log:      log.With().Str("component", "http-server").Logger(),
		cfg:      cfg,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/me", s.authenticated(s.handleMe))
	mux.HandleFunc("POST /query", s.authenticated(s.handleQuery))
	mux.HandleFunc("GET /profile", s.authenticated(s.handleProfile))
	mux.HandleFunc("GET /audit-logs", s.authenticated(s.handleAuditLogs))
	mux.HandleFunc("GET /users", s.authenticated(s.handleUsers))
	mux.HandleFunc("GET /schema", s.authenticated(s.handleSchema))
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.withRequestLog(mux)
}

// Handler returns the routed handler. For testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// ReloadPolicy re-reads the rules file and swaps the engine and report
// filters atomically. Called by the hot-reloader on file change.
func (s *Server) ReloadPolicy() error {
	rules, err := policy.Load(s.cfg.RulesPath)
	if err != nil {
		return err
	}
	s.gw.SwapPolicy(policy.NewEngine(rules))
	s.reports.SwapRules(rules)
	s.log.Info().Str("path", s.cfg.RulesPath).Msg("policy rules reloaded")
	return nil
}
