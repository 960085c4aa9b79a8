package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/attaboy/wallet/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store with a row-level lock (SELECT ... FOR UPDATE).
// Lock waits are bounded by the pool's lock_timeout runtime parameter.
type PostgresStore struct {
	pool         *pgxpool.Pool
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	entries      repository.LedgerEntryRepository
	audits       repository.AuditRepository
	outbox       repository.OutboxRepository
	metrics      *infra.Metrics
}

// NewPostgresStore creates a wallet store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool, metrics *infra.Metrics) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		wallets:      repository.NewWalletRepository(),
		transactions: repository.NewTransactionRepository(),
		entries:      repository.NewLedgerEntryRepository(),
		audits:       repository.NewAuditRepository(),
		outbox:       repository.NewOutboxRepository(),
		metrics:      metrics,
	}
}

func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, userID, currency string) (*domain.WalletAccount, error) {
	w, err := s.wallets.CreateIfAbsent(ctx, s.pool, userID, currency)
	if err != nil {
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) FindWallet(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	return s.wallets.FindByUserID(ctx, s.pool, userID)
}

func (s *PostgresStore) WithLockedWallet(ctx context.Context, userID string, fn func(ctx context.Context, wtx WalletTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin wallet tx: %w", err)
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	wallet, err := s.wallets.LockByUserID(ctx, tx, userID)
	s.metrics.ObserveLockWait(time.Since(start).Seconds())
	if err != nil {
		return classifyLockErr("lock wallet", err)
	}
	if wallet == nil {
		return domain.ErrWalletNotFound(userID)
	}

	if err := fn(ctx, &pgWalletTx{store: s, tx: tx, wallet: wallet}); err != nil {
		return classifyLockErr("wallet operation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyLockErr("commit wallet tx", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	return s.transactions.ListByUser(ctx, s.pool, userID, filter)
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.LedgerEntry, error) {
	w, err := s.FindWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrWalletNotFound(userID)
	}
	return s.entries.ListByWallet(ctx, s.pool, w.ID, filter)
}

type pgWalletTx struct {
	store  *PostgresStore
	tx     pgx.Tx
	wallet *domain.WalletAccount
}

func (t *pgWalletTx) Wallet() *domain.WalletAccount { return t.wallet }

func (t *pgWalletTx) Record(ctx context.Context, p Posting) error {
	s := t.store
	if err := s.wallets.UpdateBalance(ctx, t.tx, t.wallet.ID, p.Transaction.BalanceAfter); err != nil {
		return err
	}
	if err := s.transactions.Insert(ctx, t.tx, p.Transaction); err != nil {
		return err
	}
	if err := s.entries.Insert(ctx, t.tx, p.Entry); err != nil {
		if repository.IsUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	if err := s.audits.Insert(ctx, t.tx, p.Audit); err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, t.tx, p.Event); err != nil {
		return err
	}
	t.wallet.Balance = p.Transaction.BalanceAfter
	return nil
}

// classifyLockErr maps driver lock conflicts to CONCURRENT_MODIFICATION and
// passes domain errors through untouched.
func classifyLockErr(op string, err error) error {
	if repository.IsLockConflict(err) {
		return domain.ErrConcurrentModification(err)
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) || errors.Is(err, ErrDuplicateReference) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
