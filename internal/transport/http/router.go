package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/techservice/notifier/internal/config"
	"github.com/techservice/notifier/internal/domain"
	"github.com/techservice/notifier/internal/transport/http/handler"
	appmiddleware "github.com/techservice/notifier/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background helpers such as the rate limiter's sweeper.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.Verifier != nil {
		authMw = appmiddleware.Auth(deps.Verifier)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}
	staffOnly := appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleTechnician)
	adminOnly := appmiddleware.RequireRole(domain.RoleAdmin)
	if deps.Verifier == nil {
		staffOnly = func(next http.Handler) http.Handler { return next }
		adminOnly = staffOnly
	}

	// Applied to the public code endpoints, which send mail and accept guesses.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst).
		TrustProxies(cfg.TrustedProxies)

	healthH := handler.NewHealthHandler()
	codeH := handler.NewVerificationHandler(deps.Codes, deps.Notifications)
	notifH := handler.NewNotificationHandler(deps.Notifications)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)
			r.Post("/verification-codes", codeH.Issue)
			r.Post("/verification-codes/verify", codeH.Verify)
			r.Post("/verification-codes/resend", codeH.Resend)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(adminOnly).Get("/notifications/statistics", notifH.Statistics)
			r.With(staffOnly).Post("/notifications", notifH.Send)
			r.With(staffOnly).Get("/notifications/{trackingId}", notifH.Get)
		})
	})

	return r
}
