// Package identity resolves who is calling the API and guards routes by role.
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/pkg/apierror"
	"github.com/Black-And-White-Club/judgeboard/pkg/jwt"
)

const (
	// HeaderJudgeID and HeaderRole carry a trusted identity when no token
	// secret is configured (local development only).
	HeaderJudgeID = "X-Judge-ID"
	HeaderRole    = "X-Role"
)

// Identity is the authenticated caller.
type Identity struct {
	JudgeID string
	EventID string
	Role    jwt.Role
}

type ctxKey struct{}

// WithIdentity stores the caller on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the caller stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware authenticates requests with a bearer token. When tokens is nil
// the identity headers are trusted instead.
func Middleware(tokens jwt.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity
			if tokens == nil {
				id = Identity{
					JudgeID: r.Header.Get(HeaderJudgeID),
					Role:    jwt.Role(r.Header.Get(HeaderRole)),
				}
				if id.Role == "" {
					id.Role = jwt.RoleJudge
				}
			} else {
				raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if !ok || raw == "" {
					apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "missing bearer token")
					return
				}
				claims, err := tokens.ValidateToken(raw)
				if err != nil {
					logger.WarnContext(r.Context(), "Rejected token",
						observability.CorrelationAttr(r.Context()),
						observability.ErrorAttr(err),
					)
					apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, err.Error())
					return
				}
				id = Identity{JudgeID: claims.Subject, EventID: claims.Event, Role: jwt.Role(claims.Role)}
			}

			if !id.Role.Valid() {
				apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "unknown role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers without the given role.
func RequireRole(role jwt.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok || id.Role != role {
				apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, "requires role "+string(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CorrelationMiddleware copies chi's request id onto the context used for
// logs and published events. It must run after middleware.RequestID.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithCorrelationID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
