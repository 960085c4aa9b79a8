package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a wallet is created without an explicit currency.
const DefaultCurrency = "USD"

// WalletAccount represents a wallet_accounts row. One per user.
type WalletAccount struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WalletOperation is the input to the locked balance mutation primitive.
type WalletOperation struct {
	UserID      string
	Amount      decimal.Decimal // signed
	Type        TransactionType
	Correlation *Correlation
	ActorUserID *string
	Description string
	Metadata    json.RawMessage
}

// WalletResult is returned by every successful wallet mutation.
type WalletResult struct {
	Transaction   *Transaction    `json:"transaction"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// Balance is the read model returned by balance queries.
type Balance struct {
	UserID   string          `json:"user_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}
