package settings

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Wallet limit keys.
const (
	KeyMaxBet        = "wallet.max_bet"
	KeyMaxDeposit    = "wallet.max_deposit"
	KeyMinWithdrawal = "wallet.min_withdrawal"
)

var defaults = map[string]decimal.Decimal{
	KeyMaxBet:        decimal.RequireFromString("1000.00"),
	KeyMaxDeposit:    decimal.RequireFromString("10000.00"),
	KeyMinWithdrawal: decimal.RequireFromString("10.00"),
}

// Default returns the built-in value for a limit key.
func Default(key string) decimal.Decimal { return defaults[key] }

// Limits resolves wallet limits, falling back to built-in defaults when a key
// is unset, unreadable or not a decimal.
type Limits struct {
	src    Source
	logger *slog.Logger
}

// NewLimits creates a Limits reader over src.
func NewLimits(src Source, logger *slog.Logger) *Limits {
	return &Limits{src: src, logger: logger}
}

func (l *Limits) MaxBet(ctx context.Context) decimal.Decimal { return l.Decimal(ctx, KeyMaxBet) }

func (l *Limits) MaxDeposit(ctx context.Context) decimal.Decimal {
	return l.Decimal(ctx, KeyMaxDeposit)
}

func (l *Limits) MinWithdrawal(ctx context.Context) decimal.Decimal {
	return l.Decimal(ctx, KeyMinWithdrawal)
}

// Decimal resolves key as a decimal.
func (l *Limits) Decimal(ctx context.Context, key string) decimal.Decimal {
	def := defaults[key]
	if l == nil || l.src == nil {
		return def
	}

	raw, found, err := l.src.Lookup(ctx, key)
	if err != nil {
		l.logger.Warn("setting lookup failed, using default", "key", key, "default", def.StringFixed(2), "error", err)
		return def
	}
	if !found {
		return def
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		l.logger.Warn("setting is not a decimal, using default", "key", key, "value", raw, "default", def.StringFixed(2))
		return def
	}
	return v
}
