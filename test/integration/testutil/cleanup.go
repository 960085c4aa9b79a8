//go:build integration

package testutil

import (
	"context"
	"time"

	"github.com/attaboy/wallet/internal/settings"
)

// CleanAll truncates every wallet table and restores the default limits.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"credit_retry_jobs",
		"audit_logs",
		"event_outbox",
		"ledger_entries",
		"wallet_transactions",
		"payment_transactions",
		"wallet_accounts",
	}
	for _, table := range tables {
		if _, err := env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			env.t.Fatalf("truncate %s: %v", table, err)
		}
	}

	src := settings.NewPostgresSource(env.Pool)
	for _, key := range []string{settings.KeyMaxBet, settings.KeyMaxDeposit, settings.KeyMinWithdrawal} {
		if err := src.Set(ctx, key, settings.Default(key).StringFixed(2)); err != nil {
			env.t.Fatalf("reset setting %s: %v", key, err)
		}
	}
}
