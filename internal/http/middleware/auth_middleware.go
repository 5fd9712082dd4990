package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/engine-service-portal/internal/http/response"
	"github.com/sandeepkv93/engine-service-portal/internal/security"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
)

type contextKey string

const (
	ClaimsContextKey  contextKey = "claims"
	SubjectContextKey contextKey = "subject_id"
)

// AuthMiddleware admits a request only with a verified, unrevoked bearer
// token and stores the claims and subject id on the request context.
func AuthMiddleware(auth service.TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := authenticate(w, r, auth)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth authenticates when an Authorization header is present and
// passes anonymous requests through untouched. A header that is present but
// invalid is still rejected.
func OptionalAuth(auth service.TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, ok := authenticate(w, r, auth)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminScope must sit behind AuthMiddleware.
func RequireAdminScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized: Token missing", nil)
			return
		}
		if !claims.IsAdmin() {
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "Admin access required.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authenticate(w http.ResponseWriter, r *http.Request, auth service.TokenAuthenticator) (context.Context, bool) {
	raw, err := security.BearerToken(r.Header.Get("Authorization"))
	if err == nil {
		var claims *security.Claims
		claims, err = auth.Authenticate(r.Context(), raw)
		if err == nil {
			subjectID, _ := claims.SubjectID()
			tagRequest(r.Context(), subjectID, claims.Scope)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, SubjectContextKey, subjectID)
			return ctx, true
		}
	}

	switch {
	case errors.Is(err, security.ErrTokenMissing):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized: Token missing", nil)
	case errors.Is(err, security.ErrTokenExpired):
		response.Error(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "Session expired. Please log in again.", nil)
	case errors.Is(err, service.ErrTokenRevoked):
		response.Error(w, r, http.StatusUnauthorized, "TOKEN_REVOKED", "Session has been signed out. Please log in again.", nil)
	case errors.Is(err, security.ErrTokenMalformed):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authentication token.", nil)
	default:
		slog.ErrorContext(r.Context(), "token authentication failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "Authentication failed due to a server error.", nil)
	}
	return nil, false
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func SubjectFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(SubjectContextKey).(uint)
	return id, ok && id != 0
}
