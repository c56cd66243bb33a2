// internal/authz/middleware.go
package authz

import (
	"context"
	"net/http"

	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"
)

type principalKey struct{}

// WithPrincipal stores the authenticated user on the request context.
func WithPrincipal(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// PrincipalFrom returns the user placed by WithPrincipal.
func PrincipalFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(principalKey{}).(models.User)
	return u, ok
}

// RequireRoles rejects requests whose principal is missing (401) or whose
// role is not in roles (403).
func RequireRoles(roles ...workflow.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := PrincipalFrom(r.Context())
			if !ok {
				apperrors.WriteHTTP(w, apperrors.NewAuthenticationError("missing session"))
				return
			}
			if !allows(roles, workflow.Role(u.Role)) {
				apperrors.WriteHTTP(w, apperrors.NewForbiddenError("role "+u.Role+" not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOfficer allows any officer role.
func RequireOfficer() func(http.Handler) http.Handler {
	return RequireRoles(workflow.OfficerRoles()...)
}
