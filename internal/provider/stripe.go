package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/guard"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StripeAdapter is the card rail.
type StripeAdapter struct {
	rail
}

// NewStripeAdapter creates the Stripe adapter.
func NewStripeAdapter(cfg Config, breaker *guard.CircuitBreaker, logger *slog.Logger) (*StripeAdapter, error) {
	r, err := newRail(domain.ProviderStripe, cfg, breaker, logger)
	if err != nil {
		return nil, err
	}
	return &StripeAdapter{rail: r}, nil
}

// CheckoutSession is the subset of a checkout session the adapter reads.
type CheckoutSession struct {
	ID                string `json:"id"`
	PaymentIntent     string `json:"payment_intent"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	ClientReferenceID string `json:"client_reference_id"`
}

// BuildRedirectURL returns the hosted checkout page for a deposit. Amounts are sent in minor units.
func (s *StripeAdapter) BuildRedirectURL(txID uuid.UUID, userID string, amount decimal.Decimal, currency, returnURL string) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("stripe base url not configured")
	}
	q := url.Values{}
	q.Set("client_reference_id", txID.String())
	q.Set("customer", userID)
	q.Set("amount", amount.Shift(2).StringFixed(0))
	q.Set("currency", strings.ToLower(currency))
	if returnURL != "" {
		q.Set("success_url", returnURL)
		q.Set("cancel_url", returnURL)
	}
	return fmt.Sprintf("%s/checkout/sessions/new?%s", strings.TrimRight(s.baseURL, "/"), q.Encode()), nil
}

// FetchRemoteStatus reads the checkout session and maps it to a payment status.
func (s *StripeAdapter) FetchRemoteStatus(ctx context.Context, p *domain.PaymentTransaction) (domain.PaymentStatus, error) {
	return s.remote(ctx, func(ctx context.Context) (domain.PaymentStatus, error) {
		endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s", strings.TrimRight(s.baseURL, "/"), url.PathEscape(remoteRef(p)))
		var session CheckoutSession
		if err := s.getJSON(ctx, endpoint, &session); err != nil {
			return "", err
		}
		return mapStripeStatus(session)
	})
}

func mapStripeStatus(cs CheckoutSession) (domain.PaymentStatus, error) {
	switch cs.Status {
	case "expired":
		return domain.PaymentExpired, nil
	case "failed", "canceled":
		return domain.PaymentFailed, nil
	case "open":
		return domain.PaymentPending, nil
	case "complete":
		if cs.PaymentStatus == "paid" || cs.PaymentStatus == "no_payment_required" {
			return domain.PaymentConfirmed, nil
		}
		return domain.PaymentPending, nil
	}
	return "", fmt.Errorf("unexpected stripe session status %q", cs.Status)
}
