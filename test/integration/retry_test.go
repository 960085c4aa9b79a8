//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/test/integration/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insertConfirmedPayment stores a payment that was confirmed but never credited.
func insertConfirmedPayment(t *testing.T, env *testutil.TestEnv, userID, amount, currency string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := env.Pool.Exec(context.Background(), `
		INSERT INTO payment_transactions (id, user_id, provider, amount, currency, status, confirmed_at)
		VALUES ($1, $2, 'stripe', $3::numeric, $4, 'CONFIRMED', now() - interval '10 minutes')`,
		id, userID, amount, currency)
	require.NoError(t, err)
	return id
}

func credited(t *testing.T, env *testutil.TestEnv, id uuid.UUID) func() bool {
	return func() bool {
		_, ok := testutil.PaymentState(t, env, id)
		return ok
	}
}

func TestSweepUncredited_CreditsThroughScheduler(t *testing.T) {
	env := testutil.NewTestEnv(t)
	id := insertConfirmedPayment(t, env, "player-sweep", "18.25", "USD")

	n, err := env.Payments.SweepUncredited(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, credited(t, env, id), 3*time.Second, 20*time.Millisecond)
	testutil.AssertBalance(t, env, "player-sweep", "18.25")

	var jobs int
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM credit_retry_jobs WHERE payment_id = $1", id).Scan(&jobs))
	assert.Zero(t, jobs, "job removed once credited")
}

func TestCreditRetry_RestoresPersistedJobs(t *testing.T) {
	env := testutil.NewTestEnv(t)
	id := insertConfirmedPayment(t, env, "player-restore", "9.99", "USD")

	require.NoError(t, env.PaymentStore.SaveJob(context.Background(), &domain.CreditRetryJob{
		PaymentID: id,
		Attempt:   2,
		RunAt:     time.Now().Add(-time.Minute).UTC(),
		Status:    domain.RetryJobPending,
	}))

	n, err := env.Scheduler.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, credited(t, env, id), 3*time.Second, 20*time.Millisecond)
	testutil.AssertBalance(t, env, "player-restore", "9.99")
}

func TestCreditRetry_ExhaustsOnPermanentFailure(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, err := env.Wallets.GetOrCreateWallet(context.Background(), "player-eur", "EUR")
	require.NoError(t, err)
	id := insertConfirmedPayment(t, env, "player-eur", "30", "USD")

	require.NoError(t, env.Scheduler.Enqueue(context.Background(), id, 1))

	require.Eventually(t, func() bool {
		var status string
		err := env.Pool.QueryRow(context.Background(),
			"SELECT status FROM credit_retry_jobs WHERE payment_id = $1", id).Scan(&status)
		return err == nil && status == string(domain.RetryJobExhausted)
	}, 5*time.Second, 20*time.Millisecond)

	var retries int
	var lastErr *string
	require.NoError(t, env.Pool.QueryRow(context.Background(), `
		SELECT p.retries, j.last_error FROM payment_transactions p
		JOIN credit_retry_jobs j ON j.payment_id = p.id WHERE p.id = $1`, id).Scan(&retries, &lastErr))
	assert.Equal(t, 3, retries)
	require.NotNil(t, lastErr)
	assert.Contains(t, *lastErr, "CURRENCY_MISMATCH")

	_, ok := testutil.PaymentState(t, env, id)
	assert.False(t, ok)
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env, "player-eur"))

	// exhausted payments are left to reconciliation
	n, err := env.Payments.SweepUncredited(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
