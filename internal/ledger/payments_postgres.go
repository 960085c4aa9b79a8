package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPaymentStore implements PaymentStore and the credit retry job store.
// Status transitions are compare-and-swap updates; no row lock is taken.
type PostgresPaymentStore struct {
	pool     *pgxpool.Pool
	payments repository.PaymentRepository
	audits   repository.AuditRepository
	outbox   repository.OutboxRepository
	jobs     repository.RetryJobRepository
}

// NewPostgresPaymentStore creates a payment store over the given pool.
func NewPostgresPaymentStore(pool *pgxpool.Pool) *PostgresPaymentStore {
	return &PostgresPaymentStore{
		pool:     pool,
		payments: repository.NewPaymentRepository(),
		audits:   repository.NewAuditRepository(),
		outbox:   repository.NewOutboxRepository(),
		jobs:     repository.NewRetryJobRepository(),
	}
}

func (s *PostgresPaymentStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit payment tx: %w", err)
	}
	return nil
}

func (s *PostgresPaymentStore) CreatePayment(ctx context.Context, p *domain.PaymentTransaction, audit *domain.AuditLog, event domain.OutboxDraft) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.payments.Create(ctx, tx, p); err != nil {
			return err
		}
		if err := s.audits.Insert(ctx, tx, audit); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, event)
	})
}

func (s *PostgresPaymentStore) FindPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	return s.payments.FindByID(ctx, s.pool, id)
}

func (s *PostgresPaymentStore) ListPayments(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentTransaction, error) {
	return s.payments.ListByUser(ctx, s.pool, userID, limit, offset)
}

func (s *PostgresPaymentStore) TouchWebhook(ctx context.Context, id uuid.UUID, providerTxID, signature *string, at time.Time) error {
	return s.payments.TouchWebhook(ctx, s.pool, id, providerTxID, signature, at)
}

func (s *PostgresPaymentStore) TransitionStatus(ctx context.Context, c StatusChange) (bool, error) {
	changed := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.payments.CompareAndSetStatus(ctx, tx, c.PaymentID, c.From, c.To, c.ProviderTransactionID, c.Signature, c.At, c.WebhookAt)
		if err != nil || !ok {
			return err
		}
		if c.Audit != nil {
			if err := s.audits.Insert(ctx, tx, c.Audit); err != nil {
				return err
			}
		}
		if c.Event != nil {
			if err := s.outbox.Insert(ctx, tx, *c.Event); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *PostgresPaymentStore) MarkCredited(ctx context.Context, id uuid.UUID, at time.Time, audit *domain.AuditLog, event domain.OutboxDraft) (bool, error) {
	stamped := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.payments.MarkCredited(ctx, tx, id, at)
		if err != nil || !ok {
			return err
		}
		if err := s.audits.Insert(ctx, tx, audit); err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, event); err != nil {
			return err
		}
		stamped = true
		return nil
	})
	return stamped, err
}

func (s *PostgresPaymentStore) IncrementRetries(ctx context.Context, id uuid.UUID) error {
	return s.payments.IncrementRetries(ctx, s.pool, id)
}

func (s *PostgresPaymentStore) ListUncredited(ctx context.Context, confirmedBefore time.Time, limit int) ([]domain.PaymentTransaction, error) {
	return s.payments.ListUncredited(ctx, s.pool, confirmedBefore, limit)
}

func (s *PostgresPaymentStore) InsertAudit(ctx context.Context, log *domain.AuditLog) error {
	return s.audits.Insert(ctx, s.pool, log)
}

func (s *PostgresPaymentStore) ListAudit(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	return s.audits.ListByEntity(ctx, s.pool, entityType, entityID)
}

// SaveJob persists a pending retry so it survives a restart.
func (s *PostgresPaymentStore) SaveJob(ctx context.Context, job *domain.CreditRetryJob) error {
	return s.jobs.Upsert(ctx, s.pool, job)
}

func (s *PostgresPaymentStore) DeleteJob(ctx context.Context, paymentID uuid.UUID) error {
	return s.jobs.Delete(ctx, s.pool, paymentID)
}

func (s *PostgresPaymentStore) MarkJobExhausted(ctx context.Context, paymentID uuid.UUID, attempt int, lastErr string) error {
	return s.jobs.MarkExhausted(ctx, s.pool, paymentID, attempt, lastErr)
}

func (s *PostgresPaymentStore) ListPendingJobs(ctx context.Context) ([]domain.CreditRetryJob, error) {
	return s.jobs.ListPending(ctx, s.pool)
}
