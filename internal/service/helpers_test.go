package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/ledger"
	"github.com/attaboy/wallet/internal/provider"
	"github.com/attaboy/wallet/internal/retry"
	"github.com/attaboy/wallet/internal/settings"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const stripeSecret = "whsec_test_secret"

var (
	player = auth.Principal{UserID: "user-1", Role: auth.RolePlayer}
	admin  = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flakyStore fails WithLockedWallet while failures remain.
type flakyStore struct {
	*ledger.MemoryStore
	failures atomic.Int32
}

var errStoreDown = errors.New("connection reset by peer")

func (f *flakyStore) WithLockedWallet(ctx context.Context, userID string, fn func(ctx context.Context, wtx ledger.WalletTx) error) error {
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return errStoreDown
	}
	return f.MemoryStore.WithLockedWallet(ctx, userID, fn)
}

// mockAdapter is a testify mock of provider.Adapter.
type mockAdapter struct {
	mock.Mock
	name domain.Provider
}

func (m *mockAdapter) Name() domain.Provider { return m.name }

func (m *mockAdapter) BuildRedirectURL(txID uuid.UUID, userID string, amount decimal.Decimal, currency, returnURL string) (string, error) {
	args := m.Called(txID, userID, amount, currency, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockAdapter) IsWebhookIPAllowed(ip string) bool {
	return m.Called(ip).Bool(0)
}

func (m *mockAdapter) VerifyWebhookSignature(payload domain.WebhookInput, signature string) bool {
	return m.Called(payload, signature).Bool(0)
}

func (m *mockAdapter) FetchRemoteStatus(ctx context.Context, p *domain.PaymentTransaction) (domain.PaymentStatus, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(domain.PaymentStatus), args.Error(1)
}

// fakeScheduler records Enqueue calls.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []enqueueCall
}

type enqueueCall struct {
	id      uuid.UUID
	attempt int
}

func (f *fakeScheduler) Enqueue(_ context.Context, id uuid.UUID, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueueCall{id: id, attempt: attempt})
	return nil
}

func (f *fakeScheduler) Calls() []enqueueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enqueueCall(nil), f.calls...)
}

// recordedTimers hands retry timers back to the test instead of running them.
type recordedTimers struct {
	mu     sync.Mutex
	timers []*recordedTimer
}

type recordedTimer struct {
	delay time.Duration
	fn    func()
}

func (t *recordedTimer) Stop() bool { return true }

func (r *recordedTimers) AfterFunc(d time.Duration, fn func()) retry.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &recordedTimer{delay: d, fn: fn}
	r.timers = append(r.timers, t)
	return t
}

func (r *recordedTimers) last() *recordedTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers[len(r.timers)-1]
}

func (r *recordedTimers) delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, 0, len(r.timers))
	for _, t := range r.timers {
		out = append(out, t.delay)
	}
	return out
}

type fixture struct {
	store    *flakyStore
	wallets  *WalletService
	payments *PaymentService
	paypal   *mockAdapter
	sched    *fakeScheduler
	settings *settings.MemorySource
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := quietLogger()

	store := &flakyStore{MemoryStore: ledger.NewMemoryStore()}
	src := settings.NewMemorySource(nil)
	wallets := NewWalletService(store, settings.NewLimits(src, logger), nil, logger)

	stripe, err := provider.NewStripeAdapter(provider.Config{
		HMACSecret:  stripeSecret,
		BaseURL:     "https://checkout.stripe.test",
		IPAllowlist: []string{"10.0.0.0/8"},
	}, nil, logger)
	require.NoError(t, err)
	paypal := &mockAdapter{name: domain.ProviderPayPal}

	sched := &fakeScheduler{}
	f := &fixture{
		store:    store,
		wallets:  wallets,
		paypal:   paypal,
		sched:    sched,
		settings: src,
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.payments = NewPaymentService(store.MemoryStore, wallets, provider.NewRegistry(stripe, paypal), sched, PaymentConfig{
		StaleAfter: 30 * time.Minute,
		SweepGrace: 2 * time.Minute,
		MaxRetries: 3,
	}, nil, logger)
	f.payments.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	_, err := f.wallets.GetOrCreateWallet(context.Background(), userID, "USD")
	require.NoError(t, err)
	if amount != "" {
		_, err = f.wallets.Deposit(context.Background(), userID, dec(amount), "seed")
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	b, err := f.wallets.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b.Balance
}

func (f *fixture) deposit(t *testing.T, p domain.Provider, amount string) uuid.UUID {
	t.Helper()
	res, err := f.payments.CreateDeposit(context.Background(), domain.DepositRequest{
		UserID:   player.UserID,
		Provider: p,
		Amount:   dec(amount),
		Currency: "USD",
	})
	require.NoError(t, err)
	return res.TransactionID
}

func stripeWebhook(id uuid.UUID, status domain.PaymentStatus, amount string) domain.WebhookInput {
	ptx := "cs_" + id.String()[:8]
	in := domain.WebhookInput{
		Provider:              domain.ProviderStripe,
		TransactionID:         id,
		ProviderTransactionID: &ptx,
		Status:                status,
		Amount:                dec(amount),
		Currency:              "USD",
	}
	in.Signature = provider.Sign(stripeSecret, in)
	return in
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code, appErr.Message)
}
