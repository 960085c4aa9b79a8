package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateCurrency(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		wantErr  bool
	}{
		{"valid EUR", "EUR", false},
		{"valid USD", "USD", false},
		{"lowercase", "eur", true},
		{"mixed case", "Eur", true},
		{"too short", "EU", true},
		{"too long", "EURO", true},
		{"empty", "", true},
		{"numbers", "123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurrency(tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid currency code")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePositiveAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"positive", "100", false},
		{"one cent", "0.01", false},
		{"zero", "0", true},
		{"negative", "-5.50", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "amount must be positive")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateMoneyPrecision(t *testing.T) {
	require.NoError(t, ValidateMoneyPrecision(decimal.RequireFromString("10.25")))
	require.NoError(t, ValidateMoneyPrecision(decimal.RequireFromString("10")))
	assert.Error(t, ValidateMoneyPrecision(decimal.RequireFromString("10.255")))
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, ValidateUserID("user-1"))
	assert.Error(t, ValidateUserID(""))
	assert.Error(t, ValidateUserID(string(make([]byte, 129))))
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrNotFound("wallet", "abc-123")
		assert.Equal(t, "NOT_FOUND: wallet abc-123 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrInternal("database error", cause)
		assert.Contains(t, err.Error(), "INTERNAL_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrConcurrentModification(cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("credit payment: %w", ErrAlreadyCredited("p-1"))
	assert.True(t, IsCode(wrapped, CodeAlreadyCredited))
	assert.False(t, IsCode(wrapped, CodeInsufficientFunds))
	assert.False(t, IsCode(errors.New("plain"), CodeAlreadyCredited))
	assert.False(t, IsCode(nil, CodeAlreadyCredited))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Status)
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"ErrValidation", ErrValidation("bad input"), "VALIDATION_ERROR", 400},
		{"ErrInsufficientFunds", ErrInsufficientFunds("1.00", "2.00"), "INSUFFICIENT_FUNDS", 400},
		{"ErrLimitExceeded", ErrLimitExceeded("max bet", "1000.00"), "LIMIT_EXCEEDED", 422},
		{"ErrWalletNotFound", ErrWalletNotFound("u1"), "WALLET_NOT_FOUND", 404},
		{"ErrConcurrentModification", ErrConcurrentModification(nil), "CONCURRENT_MODIFICATION", 409},
		{"ErrAlreadyCredited", ErrAlreadyCredited("p1"), "ALREADY_CREDITED", 409},
		{"ErrDuplicateReference", ErrDuplicateReference("GAME_ROUND", "r1"), "DUPLICATE_REFERENCE", 409},
		{"ErrIPNotAllowed", ErrIPNotAllowed("1.2.3.4"), "IP_NOT_ALLOWED", 403},
		{"ErrInvalidSignature", ErrInvalidSignature(), "INVALID_SIGNATURE", 401},
		{"ErrProviderMismatch", ErrProviderMismatch("stripe", "paypal"), "PROVIDER_MISMATCH", 400},
		{"ErrCurrencyMismatch", ErrCurrencyMismatch("USD", "EUR"), "CURRENCY_MISMATCH", 400},
		{"ErrAmountMismatch", ErrAmountMismatch("1.00", "2.00"), "AMOUNT_MISMATCH", 400},
		{"ErrTransactionNotFound", ErrTransactionNotFound("p1"), "TRANSACTION_NOT_FOUND", 404},
		{"ErrProviderUnavailable", ErrProviderUnavailable("stripe", nil), "PROVIDER_UNAVAILABLE", 502},
		{"ErrUnauthorized", ErrUnauthorized("no token"), "UNAUTHORIZED", 401},
		{"ErrForbidden", ErrForbidden("not allowed"), "FORBIDDEN", 403},
		{"ErrInternal", ErrInternal("oops", nil), "INTERNAL_ERROR", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

// --- Payment Tests ---

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.False(t, PaymentPending.IsTerminal())
	assert.True(t, PaymentConfirmed.IsTerminal())
	assert.True(t, PaymentFailed.IsTerminal())
	assert.True(t, PaymentExpired.IsTerminal())
	assert.False(t, PaymentStatus("REFUNDED").Valid())
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("stripe")
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p)

	_, err = ParseProvider("bitcoin")
	assert.True(t, IsCode(err, CodeValidation))
}

func TestPaymentTransaction_NeedsCredit(t *testing.T) {
	now := time.Now()
	p := &PaymentTransaction{Status: PaymentPending}
	assert.False(t, p.NeedsCredit())
	p.Status = PaymentConfirmed
	assert.True(t, p.NeedsCredit())
	p.CreditedAt = &now
	assert.False(t, p.NeedsCredit())
}

// --- Filter Tests ---

func TestTransactionFilter_Normalize(t *testing.T) {
	f := TransactionFilter{}.Normalize()
	assert.Equal(t, DefaultPageSize, f.Limit)

	f = TransactionFilter{Limit: 10_000, Offset: -3}.Normalize()
	assert.Equal(t, MaxPageSize, f.Limit)
	assert.Equal(t, 0, f.Offset)
}

func TestTransactionFilter_Matches(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	tx := &Transaction{Type: TxBet, Status: TxStatusCompleted, CreatedAt: now}

	assert.True(t, TransactionFilter{}.Matches(tx))
	assert.True(t, TransactionFilter{Type: TxBet}.Matches(tx))
	assert.False(t, TransactionFilter{Type: TxWin}.Matches(tx))
	assert.True(t, TransactionFilter{From: &earlier}.Matches(tx))
	assert.False(t, TransactionFilter{To: &earlier}.Matches(tx))
}

// --- Event Factory Tests ---

func TestNewTransactionPostedEvent(t *testing.T) {
	walletID := uuid.New()
	tx := &Transaction{
		ID:       uuid.New(),
		WalletID: walletID,
		UserID:   "user-1",
		Type:     TxDeposit,
		Amount:   decimal.RequireFromString("100.00"),
	}

	event := NewTransactionPostedEvent(tx)

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, AggregateWallet, event.AggregateType)
	assert.Equal(t, walletID.String(), event.AggregateID)
	assert.Equal(t, EventTransactionPosted, event.EventType)
	assert.Equal(t, "user-1", event.PartitionKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "100", payload["amount"])
}

func TestNewPaymentStatusChangedEvent(t *testing.T) {
	p := &PaymentTransaction{ID: uuid.New(), UserID: "user-1"}
	event := NewPaymentStatusChangedEvent(p, PaymentPending, PaymentConfirmed)

	assert.Equal(t, AggregatePayment, event.AggregateType)
	assert.Equal(t, EventPaymentStatusChanged, event.EventType)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "PENDING", payload["from"])
	assert.Equal(t, "CONFIRMED", payload["to"])
}

func TestNewAuditLog(t *testing.T) {
	actor := "admin-1"
	log := NewAuditLog(&actor, WalletAuditAction(TxAdjustment), EntityWallet, "w-1", map[string]string{"before": "1.00"})
	assert.Equal(t, AuditAction("WALLET_ADJUSTMENT"), log.Action)
	assert.JSONEq(t, `{"before":"1.00"}`, string(log.Meta))

	empty := NewAuditLog(nil, AuditPaymentCreated, EntityPayment, "p-1", nil)
	assert.JSONEq(t, `{}`, string(empty.Meta))
}
