package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type ledgerEntryRepo struct{}

// NewLedgerEntryRepository returns a pgx-backed LedgerEntryRepository.
func NewLedgerEntryRepository() LedgerEntryRepository {
	return &ledgerEntryRepo{}
}

func (r *ledgerEntryRepo) Insert(ctx context.Context, db DBTX, e *domain.LedgerEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = []byte(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO ledger_entries
		  (id, transaction_id, wallet_id, user_id, entry_type, amount, balance_before, balance_after,
		   reference_type, reference_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID,
		e.TransactionID,
		e.WalletID,
		e.UserID,
		string(e.EntryType),
		infra.DecimalToNumeric(e.Amount),
		infra.DecimalToNumeric(e.BalanceBefore),
		infra.DecimalToNumeric(e.BalanceAfter),
		e.ReferenceType,
		e.ReferenceID,
		meta,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *ledgerEntryRepo) ListByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.LedgerEntry, error) {
	w := &whereBuilder{}
	w.add("wallet_id = $%d", walletID)
	w.applyFilter(filter, "entry_type", false)
	page := w.page(filter)

	rows, err := db.Query(ctx, `
		SELECT id, transaction_id, wallet_id, user_id, entry_type, amount, balance_before, balance_after,
		       reference_type, reference_id, metadata, created_at
		FROM ledger_entries
		WHERE `+w.sql()+`
		ORDER BY created_at DESC, id DESC
		`+page, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amountNum, beforeNum, afterNum pgtype.Numeric
		err := rows.Scan(
			&e.ID, &e.TransactionID, &e.WalletID, &e.UserID, &e.EntryType,
			&amountNum, &beforeNum, &afterNum,
			&e.ReferenceType, &e.ReferenceID, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Amount, err = infra.NumericToDecimal(amountNum); err != nil {
			return nil, err
		}
		if e.BalanceBefore, err = infra.NumericToDecimal(beforeNum); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = infra.NumericToDecimal(afterNum); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
