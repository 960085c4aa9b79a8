package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type paymentRepo struct{}

// NewPaymentRepository returns a pgx-backed PaymentRepository.
func NewPaymentRepository() PaymentRepository {
	return &paymentRepo{}
}

const paymentColumns = `id, user_id, provider, amount, currency, status, provider_transaction_id, signature,
	redirect_url, retries, created_at, updated_at, confirmed_at, credited_at, last_webhook_at`

func (r *paymentRepo) Create(ctx context.Context, db DBTX, p *domain.PaymentTransaction) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payment_transactions
		  (id, user_id, provider, amount, currency, status, provider_transaction_id, signature,
		   redirect_url, retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, string(p.Provider),
		infra.DecimalToNumeric(p.Amount), p.Currency, string(p.Status),
		p.ProviderTransactionID, p.Signature, p.RedirectURL, p.Retries,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentTransaction, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *paymentRepo) ListByUser(ctx context.Context, db DBTX, userID string, limit, offset int) ([]domain.PaymentTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	return collectPayments(rows)
}

func (r *paymentRepo) CompareAndSetStatus(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.PaymentStatus, providerTxID, signature *string, at time.Time, webhookAt *time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE payment_transactions SET
			status = $3,
			provider_transaction_id = COALESCE($4, provider_transaction_id),
			signature = COALESCE($5, signature),
			confirmed_at = CASE WHEN $3 = 'CONFIRMED' THEN $6 ELSE confirmed_at END,
			last_webhook_at = COALESCE($7, last_webhook_at),
			updated_at = $6
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), providerTxID, signature, at, webhookAt)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TouchWebhook leaves provider_transaction_id alone once the payment is terminal.
func (r *paymentRepo) TouchWebhook(ctx context.Context, db DBTX, id uuid.UUID, providerTxID, signature *string, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE payment_transactions SET
			last_webhook_at = $2,
			provider_transaction_id = CASE
				WHEN status IN ('CONFIRMED', 'FAILED', 'EXPIRED') THEN provider_transaction_id
				ELSE COALESCE($3, provider_transaction_id)
			END,
			signature = COALESCE($4, signature),
			updated_at = $2
		WHERE id = $1`, id, at, providerTxID, signature)
	if err != nil {
		return fmt.Errorf("touch payment webhook: %w", err)
	}
	return nil
}

func (r *paymentRepo) MarkCredited(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE payment_transactions SET credited_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'CONFIRMED' AND credited_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark payment credited: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) IncrementRetries(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `UPDATE payment_transactions SET retries = retries + 1, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment payment retries: %w", err)
	}
	return nil
}

func (r *paymentRepo) ListUncredited(ctx context.Context, db DBTX, confirmedBefore time.Time, limit int) ([]domain.PaymentTransaction, error) {
	rows, err := db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE status = 'CONFIRMED' AND credited_at IS NULL AND confirmed_at < $1
		ORDER BY confirmed_at ASC LIMIT $2`, confirmedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query uncredited payments: %w", err)
	}
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]domain.PaymentTransaction, error) {
	defer rows.Close()
	var payments []domain.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.PaymentTransaction, error) {
	var p domain.PaymentTransaction
	var amountNum pgtype.Numeric
	err := row.Scan(
		&p.ID, &p.UserID, &p.Provider, &amountNum, &p.Currency, &p.Status,
		&p.ProviderTransactionID, &p.Signature, &p.RedirectURL, &p.Retries,
		&p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt, &p.CreditedAt, &p.LastWebhookAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Amount, err = infra.NumericToDecimal(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert payment amount: %w", err)
	}
	return &p, nil
}
