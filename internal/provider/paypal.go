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

// PayPalAdapter is the wallet-to-wallet rail.
type PayPalAdapter struct {
	rail
}

// NewPayPalAdapter creates the PayPal adapter.
func NewPayPalAdapter(cfg Config, breaker *guard.CircuitBreaker, logger *slog.Logger) (*PayPalAdapter, error) {
	r, err := newRail(domain.ProviderPayPal, cfg, breaker, logger)
	if err != nil {
		return nil, err
	}
	return &PayPalAdapter{rail: r}, nil
}

// Order is the subset of an order resource the adapter reads.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BuildRedirectURL returns the approval page for a deposit.
func (a *PayPalAdapter) BuildRedirectURL(txID uuid.UUID, userID string, amount decimal.Decimal, currency, returnURL string) (string, error) {
	if a.baseURL == "" {
		return "", fmt.Errorf("paypal base url not configured")
	}
	q := url.Values{}
	q.Set("token", txID.String())
	q.Set("payer", userID)
	q.Set("amount", amount.StringFixed(2))
	q.Set("currency_code", strings.ToUpper(currency))
	if returnURL != "" {
		q.Set("return_url", returnURL)
	}
	return fmt.Sprintf("%s/checkoutnow?%s", strings.TrimRight(a.baseURL, "/"), q.Encode()), nil
}

// FetchRemoteStatus reads the order and maps it to a payment status.
func (a *PayPalAdapter) FetchRemoteStatus(ctx context.Context, p *domain.PaymentTransaction) (domain.PaymentStatus, error) {
	return a.remote(ctx, func(ctx context.Context) (domain.PaymentStatus, error) {
		endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s", strings.TrimRight(a.baseURL, "/"), url.PathEscape(remoteRef(p)))
		var order Order
		if err := a.getJSON(ctx, endpoint, &order); err != nil {
			return "", err
		}
		return mapPayPalStatus(order.Status)
	})
}

func mapPayPalStatus(status string) (domain.PaymentStatus, error) {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return domain.PaymentConfirmed, nil
	case "VOIDED", "DECLINED":
		return domain.PaymentFailed, nil
	case "EXPIRED":
		return domain.PaymentExpired, nil
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return domain.PaymentPending, nil
	}
	return "", fmt.Errorf("unexpected paypal order status %q", status)
}
