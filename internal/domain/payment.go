package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider identifies an external payment rail.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

// Providers lists every supported rail.
var Providers = []Provider{ProviderStripe, ProviderPayPal}

// ParseProvider validates a raw provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderStripe, ProviderPayPal:
		return p, nil
	}
	return "", ErrValidation("unknown payment provider: " + s)
}

// PaymentStatus tracks the payment lifecycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentExpired   PaymentStatus = "EXPIRED"
)

// IsTerminal reports whether no further status change is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentConfirmed || s == PaymentFailed || s == PaymentExpired
}

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s.IsTerminal()
}

// PaymentTransaction represents a payment_transactions row: one deposit attempt at a rail.
type PaymentTransaction struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                string          `json:"user_id"`
	Provider              Provider        `json:"provider"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                PaymentStatus   `json:"status"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	Signature             *string         `json:"-"`
	RedirectURL           *string         `json:"redirect_url,omitempty"`
	Retries               int             `json:"retries"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	ConfirmedAt           *time.Time      `json:"confirmed_at,omitempty"`
	CreditedAt            *time.Time      `json:"credited_at,omitempty"`
	LastWebhookAt         *time.Time      `json:"last_webhook_at,omitempty"`
}

// NeedsCredit reports whether the payment is confirmed but not yet in the wallet.
func (p *PaymentTransaction) NeedsCredit() bool {
	return p.Status == PaymentConfirmed && p.CreditedAt == nil
}

// WebhookInput is the provider notification contract.
type WebhookInput struct {
	Provider              Provider        `json:"provider"`
	TransactionID         uuid.UUID       `json:"transactionId"`
	ProviderTransactionID *string         `json:"providerTransactionId,omitempty"`
	Status                PaymentStatus   `json:"status"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Signature             string          `json:"signature"`
}

// DepositRequest is the input to CreateDeposit.
type DepositRequest struct {
	UserID    string
	Provider  Provider
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
}

// DepositResult is returned by CreateDeposit.
type DepositResult struct {
	TransactionID uuid.UUID `json:"transactionId"`
	RedirectURL   string    `json:"redirectUrl"`
}

// WebhookOutcome describes what a webhook delivery did.
type WebhookOutcome string

const (
	WebhookTransitioned WebhookOutcome = "transitioned"
	WebhookDuplicate    WebhookOutcome = "duplicate"
	WebhookTerminal     WebhookOutcome = "terminal"
)

// WebhookResult is returned by HandleWebhook on acknowledgement.
type WebhookResult struct {
	Outcome         WebhookOutcome `json:"outcome"`
	Status          PaymentStatus  `json:"status"`
	Credited        bool           `json:"credited"`
	CreditScheduled bool           `json:"creditScheduled"`
}

// ReconcileResult is returned by Reconcile.
type ReconcileResult struct {
	Changed  bool          `json:"changed"`
	From     PaymentStatus `json:"from"`
	To       PaymentStatus `json:"to"`
	Credited bool          `json:"credited"`
}

// RetryJobStatus tracks a durable credit retry job.
type RetryJobStatus string

const (
	RetryJobPending   RetryJobStatus = "PENDING"
	RetryJobExhausted RetryJobStatus = "EXHAUSTED"
)

// CreditRetryJob represents a credit_retry_jobs row.
type CreditRetryJob struct {
	PaymentID uuid.UUID      `json:"payment_id"`
	Attempt   int            `json:"attempt"`
	RunAt     time.Time      `json:"run_at"`
	Status    RetryJobStatus `json:"status"`
	LastError *string        `json:"last_error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
