package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `id, wallet_id, user_id, amount, type, status, correlation_id, correlation_type,
	balance_before, balance_after, description, created_at`

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, tx *domain.Transaction) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallet_transactions
		  (id, wallet_id, user_id, amount, type, status, correlation_id, correlation_type,
		   balance_before, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID,
		tx.WalletID,
		tx.UserID,
		infra.DecimalToNumeric(tx.Amount),
		string(tx.Type),
		string(tx.Status),
		tx.CorrelationID,
		tx.CorrelationType,
		infra.DecimalToNumeric(tx.BalanceBefore),
		infra.DecimalToNumeric(tx.BalanceAfter),
		tx.Description,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) ListByUser(ctx context.Context, db DBTX, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	w := &whereBuilder{}
	w.add("user_id = $%d", userID)
	w.applyFilter(filter, "type", true)
	page := w.page(filter)

	rows, err := db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE `+w.sql()+`
		ORDER BY created_at DESC, id DESC
		`+page, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountNum, beforeNum, afterNum pgtype.Numeric
	err := row.Scan(
		&tx.ID, &tx.WalletID, &tx.UserID, &amountNum, &tx.Type, &tx.Status,
		&tx.CorrelationID, &tx.CorrelationType,
		&beforeNum, &afterNum, &tx.Description, &tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if tx.Amount, err = infra.NumericToDecimal(amountNum); err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	if tx.BalanceBefore, err = infra.NumericToDecimal(beforeNum); err != nil {
		return nil, fmt.Errorf("convert balance_before: %w", err)
	}
	if tx.BalanceAfter, err = infra.NumericToDecimal(afterNum); err != nil {
		return nil, fmt.Errorf("convert balance_after: %w", err)
	}
	return &tx, nil
}
