package service

import (
	"context"
	"log/slog"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutcomeProducer resolves the payout of one game round.
type OutcomeProducer interface {
	Payout(ctx context.Context, userID, gameID, roundID string, bet decimal.Decimal) (decimal.Decimal, error)
}

// AuditWriter appends audit rows outside a wallet mutation.
type AuditWriter interface {
	InsertAudit(ctx context.Context, log *domain.AuditLog) error
}

// Round statuses.
const (
	RoundSettled         = "SETTLED"
	RoundOutcomeFailed   = "OUTCOME_FAILED"
	RoundWinCreditFailed = "WIN_CREDIT_FAILED"
)

// RoundResult is returned by PlayRound.
type RoundResult struct {
	RoundID string          `json:"roundId"`
	GameID  string          `json:"gameId"`
	Bet     decimal.Decimal `json:"bet"`
	Payout  decimal.Decimal `json:"payout"`
	Balance decimal.Decimal `json:"balance"`
	Status  string          `json:"status"`
}

// GameService plays rounds against an outcome producer, taking the stake
// before asking for the outcome.
type GameService struct {
	wallets *WalletService
	engine  OutcomeProducer
	audit   AuditWriter
	logger  *slog.Logger
}

// NewGameService creates a GameService.
func NewGameService(wallets *WalletService, engine OutcomeProducer, audit AuditWriter, logger *slog.Logger) *GameService {
	return &GameService{wallets: wallets, engine: engine, audit: audit, logger: logger}
}

// PlayRound debits the bet, resolves the outcome and credits any win. The stake
// is kept when the outcome cannot be resolved; the failure is audited for
// manual settlement.
func (s *GameService) PlayRound(ctx context.Context, userID, gameID string, bet decimal.Decimal) (*RoundResult, error) {
	if gameID == "" {
		return nil, domain.ErrValidation("game id is required")
	}
	roundID := uuid.New().String()

	debit, err := s.wallets.BetDebit(ctx, userID, bet, roundID)
	if err != nil {
		return nil, err
	}
	result := &RoundResult{
		RoundID: roundID,
		GameID:  gameID,
		Bet:     bet,
		Payout:  decimal.Zero,
		Balance: debit.BalanceAfter,
		Status:  RoundSettled,
	}

	payout, err := s.engine.Payout(ctx, userID, gameID, roundID, bet)
	if err != nil {
		result.Status = RoundOutcomeFailed
		s.recordFailure(ctx, userID, result, err)
		return result, domain.ErrProviderUnavailable("game engine", err)
	}
	result.Payout = payout
	if !payout.IsPositive() {
		return result, nil
	}

	win, err := s.wallets.WinCredit(ctx, userID, payout, roundID)
	if err != nil {
		result.Status = RoundWinCreditFailed
		s.recordFailure(ctx, userID, result, err)
		return result, err
	}
	result.Balance = win.BalanceAfter
	return result, nil
}

func (s *GameService) recordFailure(ctx context.Context, userID string, r *RoundResult, cause error) {
	s.logger.Error("game round failed", "user_id", userID, "round_id", r.RoundID, "game_id", r.GameID, "status", r.Status, "error", cause)
	log := domain.NewAuditLog(nil, domain.AuditGameRoundFailed, domain.EntityWallet, userID, map[string]string{
		"round_id": r.RoundID,
		"game_id":  r.GameID,
		"bet":      r.Bet.StringFixed(2),
		"payout":   r.Payout.StringFixed(2),
		"status":   r.Status,
		"error":    cause.Error(),
	})
	if err := s.audit.InsertAudit(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Warn("write game round audit", "round_id", r.RoundID, "error", err)
	}
}
