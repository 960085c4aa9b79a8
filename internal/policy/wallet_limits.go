package policy

import (
	"github.com/attaboy/wallet/internal/domain"
	"github.com/shopspring/decimal"
)

// WalletLimits bounds single wallet operations. A zero value disables that limit.
type WalletLimits struct {
	MaxBet        decimal.Decimal `json:"max_bet"`
	MaxDeposit    decimal.Decimal `json:"max_deposit"`
	MinWithdrawal decimal.Decimal `json:"min_withdrawal"`
}

// LimitEvaluation holds the result of a limits check.
type LimitEvaluation struct {
	Allowed       bool            `json:"allowed"`
	BreachedLimit string          `json:"breached_limit,omitempty"`
	LimitValue    decimal.Decimal `json:"limit_value"`
	RequestedAmt  decimal.Decimal `json:"requested_amount"`
}

// Err converts a failed evaluation into LIMIT_EXCEEDED.
func (e LimitEvaluation) Err() error {
	if e.Allowed {
		return nil
	}
	return domain.ErrLimitExceeded(e.BreachedLimit, e.LimitValue.StringFixed(2))
}

// EvaluateWalletLimits checks a positive amount against the limit for txType.
// Wins and adjustments are not limited.
func EvaluateWalletLimits(limits WalletLimits, txType domain.TransactionType, amount decimal.Decimal) LimitEvaluation {
	switch txType {
	case domain.TxBet:
		if limits.MaxBet.IsPositive() && amount.GreaterThan(limits.MaxBet) {
			return breach("max_bet", limits.MaxBet, amount)
		}
	case domain.TxDeposit:
		if limits.MaxDeposit.IsPositive() && amount.GreaterThan(limits.MaxDeposit) {
			return breach("max_deposit", limits.MaxDeposit, amount)
		}
	case domain.TxWithdrawal:
		if limits.MinWithdrawal.IsPositive() && amount.LessThan(limits.MinWithdrawal) {
			return breach("min_withdrawal", limits.MinWithdrawal, amount)
		}
	}
	return LimitEvaluation{Allowed: true}
}

func breach(name string, limit, amount decimal.Decimal) LimitEvaluation {
	return LimitEvaluation{
		Allowed:       false,
		BreachedLimit: name,
		LimitValue:    limit,
		RequestedAmt:  amount,
	}
}
