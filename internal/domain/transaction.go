package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates wallet mutation types.
type TransactionType string

const (
	TxBet        TransactionType = "BET"
	TxWin        TransactionType = "WIN"
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxBet, TxWin, TxDeposit, TxWithdrawal, TxAdjustment:
		return true
	}
	return false
}

// TransactionStatus is the status of a wallet transaction row.
// Mutations are synchronous, so every persisted row is COMPLETED.
type TransactionStatus string

const TxStatusCompleted TransactionStatus = "COMPLETED"

// CorrelationType names the external entity a mutation belongs to.
type CorrelationType string

const (
	CorrelationGameRound       CorrelationType = "GAME_ROUND"
	CorrelationPaymentWebhook  CorrelationType = "PAYMENT_WEBHOOK"
	CorrelationAdminAdjustment CorrelationType = "ADMIN_ADJUSTMENT"
)

// Correlation ties a mutation to a game round, payment or admin action.
// It doubles as the ledger uniqueness reference.
type Correlation struct {
	Type CorrelationType
	ID   string
}

// Transaction represents a wallet_transactions row (immutable).
type Transaction struct {
	ID              uuid.UUID         `json:"id"`
	WalletID        uuid.UUID         `json:"wallet_id"`
	UserID          string            `json:"user_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	CorrelationID   *string           `json:"correlation_id,omitempty"`
	CorrelationType *CorrelationType  `json:"correlation_type,omitempty"`
	BalanceBefore   decimal.Decimal   `json:"balance_before"`
	BalanceAfter    decimal.Decimal   `json:"balance_after"`
	Description     string            `json:"description"`
	CreatedAt       time.Time         `json:"created_at"`
}

// LedgerEntry mirrors a Transaction one-to-one for reporting.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	EntryType     TransactionType `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ReferenceType *string         `json:"reference_type,omitempty"`
	ReferenceID   *string         `json:"reference_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransactionFilter narrows transaction and ledger history queries.
// Zero values mean "no constraint"; Limit defaults to 50.
type TransactionFilter struct {
	Type   TransactionType
	Status TransactionStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps paging to sane bounds.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether tx passes the filter's non-paging constraints.
func (f TransactionFilter) Matches(tx *Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
