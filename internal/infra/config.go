package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const insecureDefaultSecret = "change-me-in-production"

// ProviderConfig holds the per-rail settings for a payment adapter.
type ProviderConfig struct {
	HMACSecret         string   `env:"HMAC_SECRET" envDefault:"change-me-in-production"`
	BaseURL            string   `env:"BASE_URL"`
	WebhookIPAllowlist []string `env:"WEBHOOK_IP_ALLOWLIST" envSeparator:","`
}

// RetryConfig bounds the credit retry scheduler.
type RetryConfig struct {
	MaxRetries int           `env:"CREDIT_RETRY_MAX" envDefault:"5"`
	BaseDelay  time.Duration `env:"CREDIT_RETRY_BASE_DELAY" envDefault:"2s"`
	MaxDelay   time.Duration `env:"CREDIT_RETRY_MAX_DELAY" envDefault:"5m"`
}

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL"`
	PGHost            string        `env:"PGHOST" envDefault:"localhost"`
	PGPort            int           `env:"PGPORT" envDefault:"5435"`
	PGUser            string        `env:"PGUSER" envDefault:"wallet"`
	PGPassword        string        `env:"PGPASSWORD" envDefault:"wallet"`
	PGDatabase        string        `env:"PGDATABASE" envDefault:"wallet"`
	WalletLockTimeout time.Duration `env:"WALLET_LOCK_TIMEOUT" envDefault:"5s"`

	// Redis (settings cache). Empty disables the cache.
	RedisURL         string        `env:"REDIS_URL"`
	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"30s"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Rate limits, requests per minute per key. Zero disables.
	WebhookRateLimit int `env:"WEBHOOK_RATE_LIMIT" envDefault:"600"`
	DepositRateLimit int `env:"DEPOSIT_RATE_LIMIT" envDefault:"30"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"wallet"`

	// Outbox relay
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Payments
	Retry               RetryConfig
	Stripe              ProviderConfig `envPrefix:"STRIPE_"`
	PayPal              ProviderConfig `envPrefix:"PAYPAL_"`
	PaymentStaleAfter   time.Duration  `env:"PAYMENT_STALE_AFTER" envDefault:"30m"`
	CreditSweepInterval time.Duration  `env:"CREDIT_SWEEP_INTERVAL" envDefault:"1m"`
	CreditSweepGrace    time.Duration  `env:"CREDIT_SWEEP_GRACE" envDefault:"2m"`
	CreditSweepBatch    int            `env:"CREDIT_SWEEP_BATCH" envDefault:"100"`

	// Game engine
	SlotopolURL string `env:"SLOTOPOL_URL" envDefault:"http://localhost:8080"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("CREDIT_RETRY_MAX must not be negative")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("credit retry delays invalid: base %s, max %s", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureDefaultSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	for name, p := range map[string]ProviderConfig{"STRIPE": c.Stripe, "PAYPAL": c.PayPal} {
		if p.HMACSecret == insecureDefaultSecret || p.HMACSecret == "" {
			return fmt.Errorf("%s_HMAC_SECRET is unset or the insecure default", name)
		}
		if len(p.WebhookIPAllowlist) == 0 {
			return fmt.Errorf("%s_WEBHOOK_IP_ALLOWLIST is empty; webhooks would be accepted from any address", name)
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
