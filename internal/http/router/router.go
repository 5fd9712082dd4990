package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/engine-service-portal/internal/health"
	"github.com/sandeepkv93/engine-service-portal/internal/http/handler"
	"github.com/sandeepkv93/engine-service-portal/internal/http/middleware"
	"github.com/sandeepkv93/engine-service-portal/internal/http/response"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	Authenticator     service.TokenAuthenticator
	CORSOrigins       []string
	AuthRateLimitRPM  int
	APIRateLimitRPM   int
	BodyLimitBytes    int64
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = middleware.DefaultBodyLimit
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.Authenticator)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found.", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed.", nil)
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Group(func(r chi.Router) {
		r.Use(authLimiter)
		r.Post("/register-user", dep.AuthHandler.RegisterUser)
		r.Post("/login-user", dep.AuthHandler.LoginUser)
		r.With(middleware.OptionalAuth(dep.Authenticator)).Post("/login-admin", dep.AuthHandler.LoginAdmin)
		r.With(requireAuth).Post("/register-admin", dep.AuthHandler.RegisterAdmin)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/protected", dep.AuthHandler.Protected)
		r.Get("/me", dep.AuthHandler.Me)
		r.Post("/logout-user", dep.AuthHandler.LogoutUser)
		r.With(middleware.RequireAdminScope).Get("/admin/protected", dep.AuthHandler.AdminProtected)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
