package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Black-And-White-Club/judgeboard/app/identity"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/config"
	"github.com/Black-And-White-Club/judgeboard/pkg/jwt"
)

// NewHTTPRouter builds the root chi router and the authenticated /api
// subrouter modules register on. /api/ping stays outside authentication so
// clients can probe liveness with nothing but a connection.
func NewHTTPRouter(cfg *config.Config, obs *observability.Observability, tokens jwt.Service) (*chi.Mux, chi.Router) {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		identity.CorrelationMiddleware,
		middleware.RealIP,
		requestLogger(obs.Logger),
		middleware.Recoverer,
		identity.CORSMiddleware(cfg.HTTP.AllowedOrigins),
	)
	r.Get("/metrics", obs.MetricsHandler().ServeHTTP)

	var api chi.Router
	r.Route("/api", func(sub chi.Router) {
		sub.Get("/ping", handlePing)
		sub.Group(func(authed chi.Router) {
			authed.Use(identity.Middleware(tokens, obs.Logger))
			// Ping stays unlimited so a throttled judge never reads as offline.
			if cfg.HTTP.RateLimit > 0 {
				authed.Use(identity.RateLimit(identity.NewCallerLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst)))
			}
			api = authed
		})
	})
	return r, api
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "HTTP request",
				observability.CorrelationAttr(r.Context()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
