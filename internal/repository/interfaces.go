package repository

import (
	"context"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// WalletRepository provides access to wallet_accounts.
type WalletRepository interface {
	// FindByUserID returns the user's wallet, or nil if none exists.
	FindByUserID(ctx context.Context, db DBTX, userID string) (*domain.WalletAccount, error)

	// LockByUserID acquires a row-level lock (SELECT FOR UPDATE) and returns the wallet.
	LockByUserID(ctx context.Context, tx pgx.Tx, userID string) (*domain.WalletAccount, error)

	// CreateIfAbsent inserts a zero-balance wallet unless one already exists, then returns it.
	CreateIfAbsent(ctx context.Context, db DBTX, userID, currency string) (*domain.WalletAccount, error)

	// UpdateBalance writes the new balance computed under the lock.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
}

// TransactionRepository provides access to wallet_transactions.
type TransactionRepository interface {
	Insert(ctx context.Context, db DBTX, tx *domain.Transaction) error

	// ListByUser returns transactions newest first, narrowed by the filter.
	ListByUser(ctx context.Context, db DBTX, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error)
}

// LedgerEntryRepository provides access to ledger_entries.
type LedgerEntryRepository interface {
	// Insert fails with a unique violation when the (wallet, reference, entry type) tuple exists.
	Insert(ctx context.Context, db DBTX, entry *domain.LedgerEntry) error

	ListByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.LedgerEntry, error)
}

// PaymentRepository provides access to payment_transactions.
type PaymentRepository interface {
	Create(ctx context.Context, db DBTX, p *domain.PaymentTransaction) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentTransaction, error)
	ListByUser(ctx context.Context, db DBTX, userID string, limit, offset int) ([]domain.PaymentTransaction, error)

	// CompareAndSetStatus moves the payment from one status to another.
	// Returns false when the stored status no longer equals from. A non-nil webhookAt
	// also records the delivery time.
	CompareAndSetStatus(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.PaymentStatus, providerTxID, signature *string, at time.Time, webhookAt *time.Time) (bool, error)

	// TouchWebhook updates webhook bookkeeping without touching status.
	TouchWebhook(ctx context.Context, db DBTX, id uuid.UUID, providerTxID, signature *string, at time.Time) error

	// MarkCredited stamps credited_at once, only for CONFIRMED payments.
	MarkCredited(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) (bool, error)

	IncrementRetries(ctx context.Context, db DBTX, id uuid.UUID) error

	// ListUncredited returns CONFIRMED payments without credited_at, confirmed before the cutoff.
	ListUncredited(ctx context.Context, db DBTX, confirmedBefore time.Time, limit int) ([]domain.PaymentTransaction, error)
}

// AuditRepository provides access to audit_logs.
type AuditRepository interface {
	Insert(ctx context.Context, db DBTX, log *domain.AuditLog) error
	ListByEntity(ctx context.Context, db DBTX, entityType, entityID string) ([]domain.AuditLog, error)
}

// RetryJobRepository provides access to credit_retry_jobs.
type RetryJobRepository interface {
	Upsert(ctx context.Context, db DBTX, job *domain.CreditRetryJob) error
	Delete(ctx context.Context, db DBTX, paymentID uuid.UUID) error
	MarkExhausted(ctx context.Context, db DBTX, paymentID uuid.UUID, attempt int, lastErr string) error
	ListPending(ctx context.Context, db DBTX) ([]domain.CreditRetryJob, error)
}

// SettingsRepository provides access to the settings table.
type SettingsRepository interface {
	Get(ctx context.Context, db DBTX, key string) (string, bool, error)
	Set(ctx context.Context, db DBTX, key, value string) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}
