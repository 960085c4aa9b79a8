package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
)

// ErrDuplicateReference is returned by WalletTx.Record when a ledger entry with the
// same (wallet, reference type, reference id, entry type) already exists.
var ErrDuplicateReference = errors.New("ledger entry reference already exists")

// Posting is everything one balance mutation writes, as a single atomic unit.
type Posting struct {
	Transaction *domain.Transaction
	Entry       *domain.LedgerEntry
	Audit       *domain.AuditLog
	Event       domain.OutboxDraft
}

// WalletTx is the write surface available while a wallet's lock is held.
type WalletTx interface {
	// Wallet returns the locked wallet as read under the lock.
	Wallet() *domain.WalletAccount

	// Record persists the new balance and every row of the posting.
	Record(ctx context.Context, p Posting) error
}

// Store is the durable wallet record. Implementations choose their own lock primitive.
type Store interface {
	// GetOrCreateWallet returns the user's wallet, creating a zero-balance one if absent.
	GetOrCreateWallet(ctx context.Context, userID, currency string) (*domain.WalletAccount, error)

	// FindWallet returns the user's wallet or nil.
	FindWallet(ctx context.Context, userID string) (*domain.WalletAccount, error)

	// WithLockedWallet runs fn while holding an exclusive lock on the user's wallet.
	// Writes made through the WalletTx commit only if fn returns nil.
	// Returns WALLET_NOT_FOUND when the wallet is absent and CONCURRENT_MODIFICATION
	// when the lock cannot be obtained.
	WithLockedWallet(ctx context.Context, userID string, fn func(ctx context.Context, wtx WalletTx) error) error

	ListTransactions(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error)
	ListLedgerEntries(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.LedgerEntry, error)
}

// StatusChange is one compare-and-swap payment transition with its side rows.
type StatusChange struct {
	PaymentID             uuid.UUID
	From                  domain.PaymentStatus
	To                    domain.PaymentStatus
	ProviderTransactionID *string
	Signature             *string
	At                    time.Time
	WebhookAt             *time.Time // set when the change comes from a webhook delivery
	Audit                 *domain.AuditLog
	Event                 *domain.OutboxDraft
}

// PaymentStore persists payment transactions and their audit trail.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *domain.PaymentTransaction, audit *domain.AuditLog, event domain.OutboxDraft) error
	FindPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error)
	ListPayments(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentTransaction, error)

	// TouchWebhook records delivery bookkeeping without changing status.
	TouchWebhook(ctx context.Context, id uuid.UUID, providerTxID, signature *string, at time.Time) error

	// TransitionStatus applies the change only if the stored status still equals c.From.
	// The audit row and event are written in the same unit. Returns false on a lost race.
	TransitionStatus(ctx context.Context, c StatusChange) (bool, error)

	// MarkCredited stamps credited_at at most once. The audit row and event are written
	// only when the stamp happens.
	MarkCredited(ctx context.Context, id uuid.UUID, at time.Time, audit *domain.AuditLog, event domain.OutboxDraft) (bool, error)

	IncrementRetries(ctx context.Context, id uuid.UUID) error
	ListUncredited(ctx context.Context, confirmedBefore time.Time, limit int) ([]domain.PaymentTransaction, error)
	InsertAudit(ctx context.Context, log *domain.AuditLog) error
	ListAudit(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error)
}
