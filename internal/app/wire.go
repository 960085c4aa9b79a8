package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/guard"
	"github.com/attaboy/wallet/internal/handler"
	adminhandler "github.com/attaboy/wallet/internal/handler/admin"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/attaboy/wallet/internal/service"
	"github.com/attaboy/wallet/internal/settings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Wallets  *service.WalletService
	Payments *service.PaymentService
	Games    *service.GameService
	Settings settings.Store
	Limits   *settings.Limits
	JWTMgr   *auth.JWTManager
	Metrics  *infra.Metrics
	Health   handler.Pinger
	Logger   *slog.Logger

	CORSAllowedOrigins string
	// WebhookLimiter and DepositLimiter may be nil to disable rate limiting.
	WebhookLimiter *guard.RateLimiter
	DepositLimiter *guard.RateLimiter
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger

	// Handlers
	walletHandler := handler.NewWalletHandler(deps.Wallets)
	paymentHandler := handler.NewPaymentHandler(deps.Payments)
	webhookHandler := handler.NewWebhookHandler(deps.Payments, logger)
	gameHandler := handler.NewGameHandler(deps.Games)

	// Admin handlers
	walletAdmin := adminhandler.NewWalletAdminHandler(deps.Wallets)
	paymentAdmin := adminhandler.NewPaymentAdminHandler(deps.Payments)
	settingsAdmin := adminhandler.NewSettingsAdminHandler(deps.Settings, deps.Limits)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(deps.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	// Metrics (plain text exposition, outside the JSON group)
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		// Health (no auth)
		r.Get("/health", handler.HealthHandler(deps.Health))

		// Webhooks (no JWT; IP allowlist and signature are checked by the payment service)
		r.Group(func(r chi.Router) {
			if deps.WebhookLimiter != nil {
				r.Use(handler.RateLimit(deps.WebhookLimiter, handler.ClientIP))
			}
			r.Post("/webhooks/{provider}", webhookHandler.HandleWebhook)
		})

		// Player-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(deps.JWTMgr))

			r.Route("/wallet", func(r chi.Router) {
				r.Post("/", walletHandler.OpenWallet)
				r.Get("/balance", walletHandler.GetBalance)
				r.Get("/transactions", walletHandler.GetTransactions)
			})

			r.Route("/payments", func(r chi.Router) {
				r.With(depositLimit(deps.DepositLimiter)...).Post("/deposit", paymentHandler.CreateDeposit)
				r.Get("/history", paymentHandler.GetPaymentHistory)
				r.Get("/{id}", paymentHandler.GetPayment)
			})

			r.Post("/game/rounds", gameHandler.PlayRound)
		})

		// Admin-authenticated routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Authenticate(deps.JWTMgr))
			r.Use(auth.RequireRole(auth.AdminRoles()...))

			r.Route("/payments", func(r chi.Router) {
				r.Post("/sweep", paymentAdmin.Sweep)
				r.Get("/{id}", paymentAdmin.GetPayment)
				r.Post("/{id}/reconcile", paymentAdmin.Reconcile)
			})

			r.Route("/wallets/{userID}", func(r chi.Router) {
				r.Get("/", walletAdmin.GetBalance)
				r.Post("/adjust", walletAdmin.Adjust)
				r.Get("/ledger", walletAdmin.Ledger)
				r.Get("/verify", walletAdmin.Verify)
			})

			r.Route("/settings/limits", func(r chi.Router) {
				r.Get("/", settingsAdmin.ListLimits)
				r.Put("/{key}", settingsAdmin.SetLimit)
			})
		})
	})

	return r
}

func depositLimit(rl *guard.RateLimiter) []func(http.Handler) http.Handler {
	if rl == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{handler.RateLimit(rl, func(r *http.Request) string {
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			return "deposit:" + p.UserID
		}
		return "deposit:" + handler.ClientIP(r)
	})}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
