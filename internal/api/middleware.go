// internal/api/middleware.go
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pmc-registration/internal/authz"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/metrics"
	"pmc-registration/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type sessionKey struct{}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// accessLog logs every request and feeds the HTTP metrics. The route label is
// the chi pattern so path parameters do not explode cardinality.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"durationMs": elapsed.Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", fields)
			return
		}
		h.logger.Info("request", fields)
	})
}

// authenticate verifies the bearer token, refreshes the inactivity window and
// places the principal on the context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.deps.Tokens.Parse(r.Header.Get("Authorization"))
		if err != nil {
			apperrors.WriteHTTP(w, tokenError(err))
			return
		}
		user, err := claims.User()
		if err != nil {
			apperrors.WriteHTTP(w, apperrors.NewAuthenticationError("unknown role"))
			return
		}
		if _, err := h.deps.Activity.Touch(r.Context(), claims.ID); err != nil {
			apperrors.WriteHTTP(w, tokenError(err))
			return
		}

		ctx := authz.WithPrincipal(r.Context(), user)
		ctx = context.WithValue(ctx, sessionKey{}, claims.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, session.ErrTokenExpired), errors.Is(err, session.ErrInactive):
		return apperrors.NewSessionExpiredError()
	case errors.Is(err, session.ErrMissingToken):
		return apperrors.NewAuthenticationError("missing token")
	case errors.Is(err, session.ErrInvalidToken):
		return apperrors.NewAuthenticationError("invalid token")
	default:
		return apperrors.NewExternalServiceError("session store", err)
	}
}
