package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
)

type retryJobRepo struct{}

// NewRetryJobRepository returns a pgx-backed RetryJobRepository.
func NewRetryJobRepository() RetryJobRepository {
	return &retryJobRepo{}
}

func (r *retryJobRepo) Upsert(ctx context.Context, db DBTX, job *domain.CreditRetryJob) error {
	_, err := db.Exec(ctx, `
		INSERT INTO credit_retry_jobs (payment_id, attempt, run_at, status, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (payment_id) DO UPDATE SET
			attempt = EXCLUDED.attempt,
			run_at = EXCLUDED.run_at,
			status = EXCLUDED.status,
			last_error = COALESCE(EXCLUDED.last_error, credit_retry_jobs.last_error),
			updated_at = now()`,
		job.PaymentID, job.Attempt, job.RunAt, string(job.Status), job.LastError)
	if err != nil {
		return fmt.Errorf("upsert retry job: %w", err)
	}
	return nil
}

func (r *retryJobRepo) Delete(ctx context.Context, db DBTX, paymentID uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM credit_retry_jobs WHERE payment_id = $1`, paymentID); err != nil {
		return fmt.Errorf("delete retry job: %w", err)
	}
	return nil
}

func (r *retryJobRepo) MarkExhausted(ctx context.Context, db DBTX, paymentID uuid.UUID, attempt int, lastErr string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO credit_retry_jobs (payment_id, attempt, run_at, status, last_error, updated_at)
		VALUES ($1, $2, now(), 'EXHAUSTED', NULLIF($3::text, ''), now())
		ON CONFLICT (payment_id) DO UPDATE SET
			attempt = EXCLUDED.attempt,
			status = 'EXHAUSTED',
			last_error = COALESCE(EXCLUDED.last_error, credit_retry_jobs.last_error),
			updated_at = now()`, paymentID, attempt, lastErr)
	if err != nil {
		return fmt.Errorf("mark retry job exhausted: %w", err)
	}
	return nil
}

func (r *retryJobRepo) ListPending(ctx context.Context, db DBTX) ([]domain.CreditRetryJob, error) {
	rows, err := db.Query(ctx, `
		SELECT payment_id, attempt, run_at, status, last_error, updated_at
		FROM credit_retry_jobs WHERE status = 'PENDING'
		ORDER BY run_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query retry jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.CreditRetryJob
	for rows.Next() {
		var j domain.CreditRetryJob
		if err := rows.Scan(&j.PaymentID, &j.Attempt, &j.RunAt, &j.Status, &j.LastError, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan retry job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
