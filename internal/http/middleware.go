package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/auth"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/middleware/trace"
)

// handlerFunc serves an authenticated request. A returned error is rendered
// as the JSON error response.
type handlerFunc func(w http.ResponseWriter, r *http.Request, who core.Identity) error

type identityKey struct{}

func withIdentity(ctx context.Context, who core.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, who)
}

// IdentityFrom returns the caller attached by the auth middleware.
func IdentityFrom(ctx context.Context) (core.Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(core.Identity)
	return who, ok
}

// requireAuth verifies the bearer token and stores the caller in the context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var who core.Identity
			who, err = s.verifier.Verify(token)
			if err == nil {
				ctx := withIdentity(r.Context(), who)
				ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, who.UserID))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		msg := "authentication required"
		if errors.Is(err, auth.ErrInvalidToken) {
			msg = "invalid or expired token"
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="budgetpal"`)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: msg})
	})
}

func (s *Server) serve(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, _ := IdentityFrom(r.Context())
		if err := h(w, r, who); err != nil {
			writeError(w, r, err)
		}
	})
}

// instrument records the request in the metrics and the request log under
// the route pattern rather than the raw path.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := trace.NewStatusRecorder(w)
		next.ServeHTTP(rw, r)

		d := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, rw.Status, d)
		}
		fields := log.NewFields().WithHTTP(r.Method, route, rw.Status, d.Milliseconds())
		log.LogHTTPEnd(r.Context(), fields, rw.Status)
	})
}

func callerKey(r *http.Request) string {
	who, _ := IdentityFrom(r.Context())
	return who.UserID
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, please try again later"})
}
