package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/attaboy/wallet/internal/ledger"
	"github.com/attaboy/wallet/internal/policy"
	"github.com/attaboy/wallet/internal/settings"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletService validates wallet operations and applies them through the ledger.
type WalletService struct {
	store   ledger.Store
	limits  *settings.Limits
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewWalletService creates a WalletService. A nil limits reader uses built-in defaults.
func NewWalletService(store ledger.Store, limits *settings.Limits, metrics *infra.Metrics, logger *slog.Logger) *WalletService {
	return &WalletService{store: store, limits: limits, metrics: metrics, logger: logger}
}

// BetDebit takes a stake for a game round.
func (s *WalletService) BetDebit(ctx context.Context, userID string, amount decimal.Decimal, roundID string) (*domain.WalletResult, error) {
	if err := s.validate(ctx, userID, amount, domain.TxBet); err != nil {
		return nil, err
	}
	if roundID == "" {
		return nil, domain.ErrValidation("round id is required")
	}
	return s.apply(ctx, domain.WalletOperation{
		UserID:      userID,
		Amount:      amount.Neg(),
		Type:        domain.TxBet,
		Correlation: &domain.Correlation{Type: domain.CorrelationGameRound, ID: roundID},
		Description: "bet for round " + roundID,
	})
}

// WinCredit pays out a game round.
func (s *WalletService) WinCredit(ctx context.Context, userID string, amount decimal.Decimal, roundID string) (*domain.WalletResult, error) {
	if err := s.validate(ctx, userID, amount, domain.TxWin); err != nil {
		return nil, err
	}
	if roundID == "" {
		return nil, domain.ErrValidation("round id is required")
	}
	return s.apply(ctx, domain.WalletOperation{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TxWin,
		Correlation: &domain.Correlation{Type: domain.CorrelationGameRound, ID: roundID},
		Description: "win for round " + roundID,
	})
}

// Deposit credits funds received outside the payment rails.
func (s *WalletService) Deposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*domain.WalletResult, error) {
	if err := s.validate(ctx, userID, amount, domain.TxDeposit); err != nil {
		return nil, err
	}
	return s.apply(ctx, domain.WalletOperation{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TxDeposit,
		Description: describe("deposit", reference),
		Metadata:    referenceMeta(reference),
	})
}

// Withdrawal debits funds paid out to the user.
func (s *WalletService) Withdrawal(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*domain.WalletResult, error) {
	if err := s.validate(ctx, userID, amount, domain.TxWithdrawal); err != nil {
		return nil, err
	}
	return s.apply(ctx, domain.WalletOperation{
		UserID:      userID,
		Amount:      amount.Neg(),
		Type:        domain.TxWithdrawal,
		Description: describe("withdrawal", reference),
		Metadata:    referenceMeta(reference),
	})
}

// Adjustment applies a signed manual correction. Only admins may adjust.
func (s *WalletService) Adjustment(ctx context.Context, actor auth.Principal, userID string, amount decimal.Decimal, reason string) (*domain.WalletResult, error) {
	if !actor.Role.IsAdmin() {
		return nil, domain.ErrForbidden("adjustments require an admin role")
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if amount.IsZero() {
		return nil, domain.ErrValidation("adjustment amount must be non-zero")
	}
	if err := domain.ValidateMoneyPrecision(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrValidation("adjustment reason is required")
	}

	actorID := actor.UserID
	return s.apply(ctx, domain.WalletOperation{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TxAdjustment,
		Correlation: &domain.Correlation{Type: domain.CorrelationAdminAdjustment, ID: uuid.NewString()},
		ActorUserID: &actorID,
		Description: reason,
	})
}

// GetOrCreateWallet returns the user's wallet, creating it with currency if absent.
func (s *WalletService) GetOrCreateWallet(ctx context.Context, userID, currency string) (*domain.WalletAccount, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	currency = strings.ToUpper(currency)
	if err := domain.ValidateCurrency(currency); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	w, err := s.store.GetOrCreateWallet(ctx, userID, currency)
	if err != nil {
		return nil, domain.ErrInternal("get or create wallet", err)
	}
	return w, nil
}

// GetBalance returns the current balance.
func (s *WalletService) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	w, err := s.findWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Balance{UserID: w.UserID, Balance: w.Balance, Currency: w.Currency}, nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, userID, filter.Normalize())
	if err != nil {
		return nil, domain.ErrInternal("list transactions", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// ListLedgerEntries returns the wallet's ledger lines, newest first.
func (s *WalletService) ListLedgerEntries(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.LedgerEntry, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedgerEntries(ctx, userID, filter.Normalize())
	if err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return nil, err
		}
		return nil, domain.ErrInternal("list ledger entries", err)
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return entries, nil
}

// VerifyLedger replays the wallet's full ledger while holding its lock.
func (s *WalletService) VerifyLedger(ctx context.Context, userID string) (*ledger.ChainReport, error) {
	var report ledger.ChainReport
	err := s.store.WithLockedWallet(ctx, userID, func(ctx context.Context, wtx ledger.WalletTx) error {
		var all []domain.LedgerEntry
		filter := domain.TransactionFilter{Limit: domain.MaxPageSize}
		for {
			page, err := s.store.ListLedgerEntries(ctx, userID, filter)
			if err != nil {
				return err
			}
			all = append(all, page...)
			if len(page) < filter.Limit {
				break
			}
			filter.Offset += len(page)
		}
		// pages are newest first
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
		report = ledger.VerifyChain(wtx.Wallet(), all)
		return nil
	})
	if err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return nil, err
		}
		return nil, domain.ErrInternal("verify ledger", err)
	}
	if !report.AllPassed {
		s.logger.Error("ledger verification failed", "user_id", userID, "invariants", report.Invariants)
	}
	return &report, nil
}

// CreditPayment deposits a confirmed payment. The ledger reference is the
// payment id, so a second credit surfaces as ALREADY_CREDITED.
func (s *WalletService) CreditPayment(ctx context.Context, p *domain.PaymentTransaction) (*domain.WalletResult, error) {
	w, err := s.GetOrCreateWallet(ctx, p.UserID, p.Currency)
	if err != nil {
		return nil, err
	}
	if w.Currency != p.Currency {
		return nil, domain.ErrCurrencyMismatch(w.Currency, p.Currency)
	}
	return s.apply(ctx, domain.WalletOperation{
		UserID:      p.UserID,
		Amount:      p.Amount,
		Type:        domain.TxDeposit,
		Correlation: &domain.Correlation{Type: domain.CorrelationPaymentWebhook, ID: p.ID.String()},
		Description: fmt.Sprintf("%s deposit %s", p.Provider, p.ID),
		Metadata:    mustJSON(map[string]string{"provider": string(p.Provider), "payment_id": p.ID.String()}),
	})
}

// WalletLimits resolves the current limit set.
func (s *WalletService) WalletLimits(ctx context.Context) policy.WalletLimits {
	return policy.WalletLimits{
		MaxBet:        s.limits.MaxBet(ctx),
		MaxDeposit:    s.limits.MaxDeposit(ctx),
		MinWithdrawal: s.limits.MinWithdrawal(ctx),
	}
}

func (s *WalletService) validate(ctx context.Context, userID string, amount decimal.Decimal, txType domain.TransactionType) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateMoneyPrecision(amount); err != nil {
		return domain.ErrValidation(err.Error())
	}
	return policy.EvaluateWalletLimits(s.WalletLimits(ctx), txType, amount).Err()
}

func (s *WalletService) findWallet(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	w, err := s.store.FindWallet(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	}
	if w == nil {
		return nil, domain.ErrWalletNotFound(userID)
	}
	return w, nil
}

// apply runs op under the wallet lock and maps storage failures to domain errors.
func (s *WalletService) apply(ctx context.Context, op domain.WalletOperation) (*domain.WalletResult, error) {
	var result *domain.WalletResult
	err := s.store.WithLockedWallet(ctx, op.UserID, func(ctx context.Context, wtx ledger.WalletTx) error {
		r, err := ledger.Apply(ctx, wtx, op)
		result = r
		return err
	})
	if err != nil {
		err = s.mapApplyError(op, err)
		s.metrics.WalletOp(string(op.Type), resultLabel(err))
		s.logger.Warn("wallet operation rejected", "user_id", op.UserID, "type", op.Type, "amount", op.Amount.StringFixed(2), "error", err)
		return nil, err
	}

	s.metrics.WalletOp(string(op.Type), "ok")
	s.logger.Info("wallet operation applied",
		"user_id", op.UserID,
		"type", op.Type,
		"transaction_id", result.Transaction.ID,
		"amount", op.Amount.StringFixed(2),
		"balance_after", result.BalanceAfter.StringFixed(2),
	)
	return result, nil
}

func (s *WalletService) mapApplyError(op domain.WalletOperation, err error) error {
	if errors.Is(err, ledger.ErrDuplicateReference) {
		if op.Correlation != nil && op.Correlation.Type == domain.CorrelationPaymentWebhook {
			return domain.ErrAlreadyCredited(op.Correlation.ID)
		}
		if op.Correlation != nil {
			return domain.ErrDuplicateReference(string(op.Correlation.Type), op.Correlation.ID)
		}
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrInternal("apply wallet operation", err)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := domain.AsAppError(err); ok {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

func validateFilter(f domain.TransactionFilter) error {
	if f.Type != "" && !f.Type.Valid() {
		return domain.ErrValidation("unknown transaction type: " + string(f.Type))
	}
	if f.Status != "" && f.Status != domain.TxStatusCompleted {
		return domain.ErrValidation("unknown transaction status: " + string(f.Status))
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return domain.ErrValidation("'to' must not be before 'from'")
	}
	return nil
}

func describe(kind, reference string) string {
	if reference == "" {
		return kind
	}
	return kind + " " + reference
}

func referenceMeta(reference string) json.RawMessage {
	if reference == "" {
		return nil
	}
	return mustJSON(map[string]string{"reference": reference})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
