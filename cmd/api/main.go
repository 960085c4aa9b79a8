package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/wallet/internal/app"
	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/guard"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/attaboy/wallet/internal/ledger"
	"github.com/attaboy/wallet/internal/provider"
	"github.com/attaboy/wallet/internal/retry"
	"github.com/attaboy/wallet/internal/service"
	"github.com/attaboy/wallet/internal/settings"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local dev.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not read .env", "error", err)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	metrics := infra.NewMetrics()

	// Settings, optionally fronted by Redis
	var settingsStore settings.Store = settings.NewPostgresSource(pool)
	if cfg.RedisURL != "" {
		rdb, err := settings.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		settingsStore = settings.NewRedisCache(rdb, settingsStore, cfg.SettingsCacheTTL, logger)
		logger.Info("settings cache enabled", "ttl", cfg.SettingsCacheTTL)
	}
	limits := settings.NewLimits(settingsStore, logger)

	// Stores
	walletStore := ledger.NewPostgresStore(pool, metrics)
	paymentStore := ledger.NewPostgresPaymentStore(pool)

	// Payment rails share one breaker keyed by provider name
	breaker := guard.NewCircuitBreaker(5, 30*time.Second)
	stripe, err := provider.NewStripeAdapter(providerConfig(cfg.Stripe), breaker, logger)
	if err != nil {
		return fmt.Errorf("stripe adapter: %w", err)
	}
	paypal, err := provider.NewPayPalAdapter(providerConfig(cfg.PayPal), breaker, logger)
	if err != nil {
		return fmt.Errorf("paypal adapter: %w", err)
	}
	registry := provider.NewRegistry(stripe, paypal)

	// Services. The scheduler calls back into the payment service, so the
	// processor closes over a variable assigned below.
	wallets := service.NewWalletService(walletStore, limits, metrics, logger)

	var payments *service.PaymentService
	scheduler := retry.NewScheduler(paymentStore, func(ctx context.Context, id uuid.UUID) error {
		return payments.ProcessCredit(ctx, id)
	}, retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}, logger, retry.WithMetrics(metrics))
	defer scheduler.ClearAll()

	payments = service.NewPaymentService(paymentStore, wallets, registry, scheduler, service.PaymentConfig{
		StaleAfter: cfg.PaymentStaleAfter,
		SweepGrace: cfg.CreditSweepGrace,
		SweepBatch: cfg.CreditSweepBatch,
		MaxRetries: cfg.Retry.MaxRetries,
	}, metrics, logger)

	games := service.NewGameService(wallets, provider.NewSlotopolClient(cfg.SlotopolURL, logger), paymentStore, logger)

	restored, err := scheduler.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore credit retries: %w", err)
	}
	logger.Info("credit retries restored", "count", restored)

	go payments.StartSweeper(ctx, cfg.CreditSweepInterval)

	// Outbox relay runs in-process when Kafka is on
	if cfg.KafkaEnabled {
		producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
		defer producer.Close()
		infra.NewOutboxPoller(pool, producer, cfg.KafkaTopicPrefix, metrics, logger,
			infra.WithPollInterval(cfg.OutboxPollInterval),
			infra.WithBatchSize(cfg.OutboxBatchSize),
		).Start(ctx)
	}

	webhookLimiter := newLimiter(ctx, cfg.WebhookRateLimit)
	depositLimiter := newLimiter(ctx, cfg.DepositRateLimit)

	router := app.NewRouter(app.RouterDeps{
		Wallets:  wallets,
		Payments: payments,
		Games:    games,
		Settings: settingsStore,
		Limits:   limits,
		JWTMgr:   auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry),
		Metrics:  metrics,
		Health: func(ctx context.Context) error {
			return infra.HealthCheck(ctx, pool)
		},
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookLimiter:     webhookLimiter,
		DepositLimiter:     depositLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "port", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func providerConfig(c infra.ProviderConfig) provider.Config {
	return provider.Config{
		HMACSecret:  c.HMACSecret,
		BaseURL:     c.BaseURL,
		IPAllowlist: c.WebhookIPAllowlist,
	}
}

func newLimiter(ctx context.Context, perMinute int) *guard.RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	rl := guard.NewRateLimiter(perMinute, time.Minute)
	go rl.RunSweeper(ctx, time.Minute)
	return rl
}
