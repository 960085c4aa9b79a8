package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/guard"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Adapter is the contract every payment rail implements.
type Adapter interface {
	Name() domain.Provider
	BuildRedirectURL(txID uuid.UUID, userID string, amount decimal.Decimal, currency, returnURL string) (string, error)
	IsWebhookIPAllowed(ip string) bool
	VerifyWebhookSignature(payload domain.WebhookInput, signature string) bool
	FetchRemoteStatus(ctx context.Context, p *domain.PaymentTransaction) (domain.PaymentStatus, error)
}

// Config is the per-rail configuration.
type Config struct {
	HMACSecret  string
	BaseURL     string
	IPAllowlist []string
}

// rail holds what the Stripe and PayPal adapters share: secret, allowlist,
// HTTP client and the circuit breaker around remote status calls.
type rail struct {
	name      domain.Provider
	secret    string
	baseURL   string
	allowlist Allowlist
	client    *http.Client
	breaker   *guard.CircuitBreaker
	logger    *slog.Logger
}

func newRail(name domain.Provider, cfg Config, breaker *guard.CircuitBreaker, logger *slog.Logger) (rail, error) {
	al, err := ParseAllowlist(cfg.IPAllowlist)
	if err != nil {
		return rail{}, fmt.Errorf("%s: %w", name, err)
	}
	if al.Empty() {
		logger.Warn("webhook IP allowlist is empty, accepting webhooks from any address", "provider", name)
	}
	if breaker == nil {
		breaker = guard.NewCircuitBreaker(5, 30*time.Second)
	}
	return rail{
		name:      name,
		secret:    cfg.HMACSecret,
		baseURL:   cfg.BaseURL,
		allowlist: al,
		client:    &http.Client{Timeout: 10 * time.Second},
		breaker:   breaker,
		logger:    logger,
	}, nil
}

func (r *rail) Name() domain.Provider { return r.name }

func (r *rail) IsWebhookIPAllowed(ip string) bool { return r.allowlist.Allows(ip) }

func (r *rail) VerifyWebhookSignature(payload domain.WebhookInput, signature string) bool {
	return VerifySignature(r.secret, payload, signature)
}

// remote runs call through the rail's circuit breaker and maps any failure to PROVIDER_UNAVAILABLE.
func (r *rail) remote(ctx context.Context, call func(ctx context.Context) (domain.PaymentStatus, error)) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	err := r.breaker.Do(ctx, string(r.name), func(ctx context.Context) error {
		s, err := call(ctx)
		status = s
		return err
	})
	if err != nil {
		return "", domain.ErrProviderUnavailable(string(r.name), err)
	}
	return status, nil
}

// Registry resolves the fixed set of payment rails.
type Registry struct {
	stripe Adapter
	paypal Adapter
}

// NewRegistry creates a registry over one adapter per rail.
func NewRegistry(stripe, paypal Adapter) *Registry {
	return &Registry{stripe: stripe, paypal: paypal}
}

// Get returns the adapter for p. Unknown providers are a validation error.
func (r *Registry) Get(p domain.Provider) (Adapter, error) {
	var a Adapter
	switch p {
	case domain.ProviderStripe:
		a = r.stripe
	case domain.ProviderPayPal:
		a = r.paypal
	default:
		return nil, domain.ErrValidation("unknown payment provider: " + string(p))
	}
	if a == nil {
		return nil, domain.ErrValidation("payment provider not configured: " + string(p))
	}
	return a, nil
}
