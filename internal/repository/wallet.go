package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

const walletColumns = `id, user_id, balance, currency, created_at, updated_at`

func (r *walletRepo) FindByUserID(ctx context.Context, db DBTX, userID string) (*domain.WalletAccount, error) {
	row := db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallet_accounts WHERE user_id = $1`, userID)
	return scanWallet(row)
}

func (r *walletRepo) LockByUserID(ctx context.Context, tx pgx.Tx, userID string) (*domain.WalletAccount, error) {
	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

// CreateIfAbsent relies on the user_id unique constraint so concurrent first calls converge on one row.
func (r *walletRepo) CreateIfAbsent(ctx context.Context, db DBTX, userID, currency string) (*domain.WalletAccount, error) {
	_, err := db.Exec(ctx, `
		INSERT INTO wallet_accounts (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, currency)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return r.FindByUserID(ctx, db, userID)
}

func (r *walletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallet_accounts SET balance = $2, updated_at = now()
		WHERE id = $1`, walletID, infra.DecimalToNumeric(balance))
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update wallet balance: wallet %s not found", walletID)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.WalletAccount, error) {
	var w domain.WalletAccount
	var balNum pgtype.Numeric
	err := row.Scan(&w.ID, &w.UserID, &balNum, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	w.Balance, err = infra.NumericToDecimal(balNum)
	if err != nil {
		return nil, fmt.Errorf("convert balance: %w", err)
	}
	return &w, nil
}
