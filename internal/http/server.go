// Package http exposes the family, invitation and expense operations as a
// JSON API authenticated with bearer tokens.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/auth"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/backend"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/cache"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/metrics"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/middleware/ratelimit"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/middleware/security"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/middleware/trace"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/services"
)

const readyTimeout = 2 * time.Second

// Deps are the collaborators the server routes requests to. Families,
// Events, Metrics and Ready are optional.
type Deps struct {
	Coordinator *family.Coordinator
	Expenses    *services.ExpenseService
	// Families serves GET /v1/family, usually the cached resolver.
	Families cache.Resolver
	Events   backend.EventLog
	Verifier *auth.Verifier
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	Ready    func(ctx context.Context) error

	RateLimitPerMinute int
	ConflictRetries    int
}

// Server wraps http.Server with the API routes and middleware.
type Server struct {
	http.Server

	coord    *family.Coordinator
	expenses *services.ExpenseService
	families cache.Resolver
	events   backend.EventLog
	verifier *auth.Verifier
	metrics  *metrics.Metrics
	ready    func(ctx context.Context) error

	limiter      *ratelimit.Limiter
	retries      int
	retryBackoff time.Duration
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP})
	}
	families := d.Families
	if families == nil {
		families = d.Coordinator
	}

	s := &Server{
		coord:        d.Coordinator,
		expenses:     d.Expenses,
		families:     families,
		events:       d.Events,
		verifier:     d.Verifier,
		metrics:      d.Metrics,
		ready:        d.Ready,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RateLimitPerMinute}),
		retries:      d.ConflictRetries,
		retryBackoff: 20 * time.Millisecond,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.read(mux, "GET /v1/family", s.handleGetFamily)
	s.read(mux, "GET /v1/family/members", s.handleGetMembers)
	s.read(mux, "GET /v1/family/events", s.handleListEvents)
	s.write(mux, "PATCH /v1/family/members/{id}", s.handleUpdateMember)
	s.write(mux, "DELETE /v1/family/members/{id}", s.handleRemoveMember)

	s.write(mux, "POST /v1/users/me", s.handleRegister)
	s.read(mux, "GET /v1/users/search", s.handleSearchUsers)

	s.write(mux, "POST /v1/invitations", s.handleInvite)
	s.read(mux, "GET /v1/invitations/pending", s.handlePendingInvitations)
	s.read(mux, "GET /v1/invitations/sent", s.handleSentInvitations)
	s.write(mux, "POST /v1/invitations/{id}/accept", s.handleAccept)
	s.write(mux, "POST /v1/invitations/{id}/reject", s.handleReject)

	s.read(mux, "GET /v1/expenses", s.handleListExpenses)
	s.write(mux, "POST /v1/expenses", s.handleAddExpense)
	s.write(mux, "PUT /v1/expenses/{id}", s.handleUpdateExpense)
	s.write(mux, "DELETE /v1/expenses/{id}", s.handleDeleteExpense)
	s.read(mux, "GET /v1/categories", s.handleListCategories)
	s.write(mux, "POST /v1/categories", s.handleAddCategory)

	s.write(mux, "PUT /v1/budget", s.handleSetBudget)
	s.read(mux, "GET /v1/budget/overview", s.handleOverview)

	var h http.Handler = mux
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(logger, trace.FromRequest)(h)
	h = trace.Middleware(h)

	s.Addr = addr
	s.Handler = h
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s
}

// read registers an authenticated route.
func (s *Server) read(mux *http.ServeMux, pattern string, h handlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, s.requireAuth(s.serve(h))))
}

// write registers an authenticated route limited per caller.
func (s *Server) write(mux *http.ServeMux, pattern string, h handlerFunc) {
	limited := s.limiter.Middleware(callerKey, writeRateLimited)(s.serve(h))
	mux.Handle(pattern, s.instrument(pattern, s.requireAuth(limited)))
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
