package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
}

// badRequest is a malformed request that never reached the domain layer.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return &badRequest{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var br *badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// nginx's "client closed request"
		return 499
	}
	switch core.KindOf(err) {
	case core.KindAuth:
		return http.StatusUnauthorized
	case core.KindAuthorization:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindInvalidState, core.KindConflict:
		return http.StatusConflict
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.Message(err)
	var br *badRequest
	if errors.As(err, &br) {
		msg = br.msg
	}

	ctx := r.Context()
	fields := log.NewFields().WithError(err, core.KindOf(err).String())
	if status >= http.StatusInternalServerError {
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", fields.ToSlice()...)
		msg = "internal error"
	} else {
		log.FromContext(ctx).DebugContext(ctx, "Request rejected", fields.ToSlice()...)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// withRetry runs fn again while it fails with a conflict, backing off
// exponentially. The last conflict is returned once attempts run out.
func (s *Server) withRetry(ctx context.Context, route string, fn func() error) error {
	err := fn()
	for attempt := 0; attempt < s.retries && core.IsConflict(err); attempt++ {
		wait := s.retryBackoff << attempt
		log.FromContext(ctx).DebugContext(ctx, "Retrying after conflict",
			log.FieldRoute, route, log.FieldAttempt, attempt+1, "backoff", wait)
		if s.metrics != nil {
			s.metrics.ObserveRetry(route)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn()
	}
	return err
}
