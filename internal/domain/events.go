package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID, partitionKey string, evt EventType, payload any) OutboxDraft {
	raw, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partitionKey,
		Headers:       json.RawMessage(`{}`),
		Payload:       raw,
		OccurredAt:    time.Now(),
	}
}

// NewTransactionPostedEvent creates the standard wallet event for a ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	return newDraft(AggregateWallet, tx.WalletID.String(), tx.UserID, EventTransactionPosted, tx)
}

// NewPaymentCreatedEvent is emitted when a deposit attempt is opened.
func NewPaymentCreatedEvent(p *PaymentTransaction) OutboxDraft {
	return newDraft(AggregatePayment, p.ID.String(), p.UserID, EventPaymentCreated, map[string]any{
		"payment_id": p.ID.String(),
		"user_id":    p.UserID,
		"provider":   p.Provider,
		"amount":     p.Amount.StringFixed(2),
		"currency":   p.Currency,
	})
}

// NewPaymentStatusChangedEvent is emitted on every status transition.
func NewPaymentStatusChangedEvent(p *PaymentTransaction, from, to PaymentStatus) OutboxDraft {
	return newDraft(AggregatePayment, p.ID.String(), p.UserID, EventPaymentStatusChanged, map[string]any{
		"payment_id": p.ID.String(),
		"user_id":    p.UserID,
		"from":       from,
		"to":         to,
	})
}

// NewPaymentCreditedEvent is emitted once the deposit reaches the wallet.
func NewPaymentCreditedEvent(p *PaymentTransaction, txID uuid.UUID) OutboxDraft {
	return newDraft(AggregatePayment, p.ID.String(), p.UserID, EventPaymentCredited, map[string]any{
		"payment_id":     p.ID.String(),
		"user_id":        p.UserID,
		"transaction_id": txID.String(),
		"amount":         p.Amount.StringFixed(2),
		"currency":       p.Currency,
	})
}
