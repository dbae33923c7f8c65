package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftlabs/storefront-backend/api/controllers"
	"github.com/driftlabs/storefront-backend/api/middleware"
	"github.com/driftlabs/storefront-backend/internal/admin"
	"github.com/driftlabs/storefront-backend/internal/auth"
	checkoutsvc "github.com/driftlabs/storefront-backend/internal/checkout"
	"github.com/driftlabs/storefront-backend/internal/media"
	subscriptionsvc "github.com/driftlabs/storefront-backend/internal/subscriptions"
	"github.com/driftlabs/storefront-backend/internal/webhooks"
	"github.com/driftlabs/storefront-backend/pkg/auth/session"
	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	"github.com/driftlabs/storefront-backend/pkg/i18n"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/redis"
)

// RouterParams bundles everything the router mounts.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Session     session.AccessSessionChecker
	Bundle      *i18n.Bundle
	Registry    *prometheus.Registry
	AuthService auth.Service
	Checkout    checkoutsvc.Service
	Subs        subscriptionsvc.Service
	Webhooks    *webhooks.Service
	Media       media.Service
	Admin       admin.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Locale(p.Bundle),
	)

	requireAuth := middleware.Auth(cfg.JWT, p.Session, logg)
	requireAdmin := middleware.RequireRole(string(enums.UserRoleAdmin), logg)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": p.DB,
			"redis":    p.Redis,
		}))
	})

	if p.Registry != nil {
		r.Method("GET", "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, p.Redis, logg)).Post("/register", controllers.AuthRegister(p.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.AuthLogin(p.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(p.AuthService, cfg.JWT, logg))
	})

	r.Route("/api/payments", func(r chi.Router) {
		// Webhooks authenticate by signature, never by session.
		r.Post("/webhooks", controllers.Webhook(p.Webhooks, logg))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/create-checkout", controllers.CreateCheckout(p.Checkout, logg))
			r.Post("/create-intent", controllers.CreateIntent(p.Checkout, logg))
			r.Post("/cancel-subscription", controllers.CancelSubscription(p.Checkout, logg))
			r.Get("/subscriptions", controllers.ListSubscriptions(p.Subs, logg))
			r.Get("/customer-state", controllers.CustomerState(p.Subs, logg))
			r.Get("/has-active-subscription", controllers.HasActiveSubscription(p.Subs, logg))
		})
	})

	r.Route("/api/v1/media", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", controllers.MediaList(p.Media, logg))
		r.Post("/presign", controllers.MediaPresign(p.Media, logg))
		r.Post("/register-url", controllers.MediaRegisterURL(p.Media, logg))
		r.Delete("/{mediaID}", controllers.MediaDelete(p.Media, logg))
	})

	r.Route("/api/v1/locales", func(r chi.Router) {
		r.Get("/", controllers.LocalesList(p.Bundle, logg))
		r.Get("/{locale}/messages", controllers.LocaleMessages(p.Bundle, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(requireAuth, requireAdmin)
		r.Get("/summary", controllers.AdminSummary(p.Admin, logg))
		r.Get("/users", controllers.AdminUsersWithUploads(p.Admin, logg))
	})

	return r
}
