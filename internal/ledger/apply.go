package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
)

// Apply is the balance mutation primitive. It must run inside WithLockedWallet:
// it computes the new balance from the locked row, rejects a negative result
// without writing anything, and records the transaction, its ledger mirror, the
// WALLET_<TYPE> audit line and the outbox event as one posting.
func Apply(ctx context.Context, wtx WalletTx, op domain.WalletOperation) (*domain.WalletResult, error) {
	wallet := wtx.Wallet()
	before := wallet.Balance
	after := before.Add(op.Amount)

	if after.IsNegative() {
		return nil, domain.ErrInsufficientFunds(before.StringFixed(2), op.Amount.Neg().StringFixed(2))
	}

	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		UserID:        wallet.UserID,
		Amount:        op.Amount,
		Type:          op.Type,
		Status:        domain.TxStatusCompleted,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   op.Description,
		CreatedAt:     now,
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		WalletID:      wallet.ID,
		UserID:        wallet.UserID,
		EntryType:     op.Type,
		Amount:        op.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Metadata:      mergeMeta(op.Metadata, map[string]interface{}{"currency": wallet.Currency, "description": op.Description}),
		CreatedAt:     now,
	}

	if c := op.Correlation; c != nil {
		ct := c.Type
		tx.CorrelationType = &ct
		tx.CorrelationID = strPtr(c.ID)
		entry.ReferenceType = strPtr(string(c.Type))
		entry.ReferenceID = strPtr(c.ID)
	}

	audit := domain.NewAuditLog(op.ActorUserID, domain.WalletAuditAction(op.Type), domain.EntityWallet, wallet.ID.String(), map[string]any{
		"transaction_id": tx.ID.String(),
		"user_id":        wallet.UserID,
		"amount":         op.Amount.StringFixed(2),
		"before":         before.StringFixed(2),
		"after":          after.StringFixed(2),
		"correlation":    op.Correlation,
	})

	err := wtx.Record(ctx, Posting{
		Transaction: tx,
		Entry:       entry,
		Audit:       audit,
		Event:       domain.NewTransactionPostedEvent(tx),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return nil, err
		}
		return nil, fmt.Errorf("record %s: %w", op.Type, err)
	}

	return &domain.WalletResult{Transaction: tx, BalanceBefore: before, BalanceAfter: after}, nil
}
