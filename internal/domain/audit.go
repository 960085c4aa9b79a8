package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction enumerates audit log actions.
type AuditAction string

const (
	AuditPaymentCreated       AuditAction = "PAYMENT_CREATED"
	AuditPaymentStatusChanged AuditAction = "PAYMENT_STATUS_CHANGED"
	AuditPaymentCredited      AuditAction = "PAYMENT_CREDITED"
	AuditPaymentReconciled    AuditAction = "PAYMENT_RECONCILED"
	AuditGameRoundFailed      AuditAction = "GAME_ROUND_FAILED"
)

// WalletAuditAction returns the WALLET_<TYPE> action for a mutation type.
func WalletAuditAction(t TransactionType) AuditAction {
	return AuditAction("WALLET_" + string(t))
}

// Audit entity types.
const (
	EntityWallet  = "wallet"
	EntityPayment = "payment_transaction"
)

// AuditLog represents an audit_logs row (append-only).
type AuditLog struct {
	ID          uuid.UUID       `json:"id"`
	ActorUserID *string         `json:"actor_user_id,omitempty"`
	Action      AuditAction     `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Meta        json.RawMessage `json:"meta"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewAuditLog builds an audit row; meta is marshalled to JSON.
func NewAuditLog(actor *string, action AuditAction, entityType, entityID string, meta any) *AuditLog {
	raw, err := json.Marshal(meta)
	if err != nil || meta == nil {
		raw = json.RawMessage(`{}`)
	}
	return &AuditLog{
		ID:          uuid.New(),
		ActorUserID: actor,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Meta:        raw,
		CreatedAt:   time.Now().UTC(),
	}
}
