package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimers captures armed callbacks so tests decide when they fire.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[len(f.timers)-1]
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

var testCfg = Config{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestScheduler(store JobStore, process Processor) (*Scheduler, *fakeTimers) {
	ft := &fakeTimers{}
	return NewScheduler(store, process, testCfg, quietLogger(), WithAfterFunc(ft.AfterFunc)), ft
}

func TestComputeDelay(t *testing.T) {
	s, _ := newTestScheduler(ledger.NewMemoryStore(), nil)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
		{200, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.ComputeDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestEnqueue_PersistsAndArms(t *testing.T) {
	store := ledger.NewMemoryStore()
	s, ft := newTestScheduler(store, func(context.Context, uuid.UUID) error { return nil })
	id := uuid.New()

	require.NoError(t, s.Enqueue(context.Background(), id, 1))

	assert.True(t, s.Pending(id))
	assert.Equal(t, 2*time.Second, ft.last().delay)
	job, ok := store.Job(id)
	require.True(t, ok)
	assert.Equal(t, domain.RetryJobPending, job.Status)
	assert.Equal(t, 1, job.Attempt)
}

func TestEnqueue_SecondCallIsNoop(t *testing.T) {
	s, ft := newTestScheduler(ledger.NewMemoryStore(), nil)
	id := uuid.New()

	require.NoError(t, s.Enqueue(context.Background(), id, 1))
	require.NoError(t, s.Enqueue(context.Background(), id, 2))

	assert.Equal(t, 1, ft.count())
	assert.Equal(t, 1, s.Len())
}

func TestFire_SuccessDropsJob(t *testing.T) {
	store := ledger.NewMemoryStore()
	var calls int
	s, ft := newTestScheduler(store, func(context.Context, uuid.UUID) error {
		calls++
		return nil
	})
	id := uuid.New()
	require.NoError(t, s.Enqueue(context.Background(), id, 1))

	ft.last().fn()

	assert.Equal(t, 1, calls)
	assert.False(t, s.Pending(id))
	_, ok := store.Job(id)
	assert.False(t, ok)
}

func TestFire_AlreadyCreditedCountsAsSuccess(t *testing.T) {
	store := ledger.NewMemoryStore()
	s, ft := newTestScheduler(store, func(_ context.Context, id uuid.UUID) error {
		return domain.ErrAlreadyCredited(id.String())
	})
	id := uuid.New()
	require.NoError(t, s.Enqueue(context.Background(), id, 1))

	ft.last().fn()

	assert.Equal(t, 1, ft.count())
	_, ok := store.Job(id)
	assert.False(t, ok)
}

func TestFire_FailureReschedulesUntilExhausted(t *testing.T) {
	store := ledger.NewMemoryStore()
	var calls int
	s, ft := newTestScheduler(store, func(context.Context, uuid.UUID) error {
		calls++
		return errors.New("db unavailable")
	})
	id := uuid.New()
	require.NoError(t, s.Enqueue(context.Background(), id, 1))

	var delays []time.Duration
	for i := 0; i < testCfg.MaxRetries; i++ {
		tm := ft.last()
		delays = append(delays, tm.delay)
		tm.fn()
	}

	assert.Equal(t, testCfg.MaxRetries, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}, delays)
	assert.Equal(t, testCfg.MaxRetries, ft.count(), "no timer armed past max retries")
	assert.False(t, s.Pending(id))

	job, ok := store.Job(id)
	require.True(t, ok)
	assert.Equal(t, domain.RetryJobExhausted, job.Status)
	assert.Equal(t, testCfg.MaxRetries, job.Attempt)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "db unavailable", *job.LastError)
}

func TestEnqueue_BeyondMaxMarksExhausted(t *testing.T) {
	store := ledger.NewMemoryStore()
	s, ft := newTestScheduler(store, nil)
	id := uuid.New()

	require.NoError(t, s.Enqueue(context.Background(), id, testCfg.MaxRetries+1))

	assert.Zero(t, ft.count())
	job, ok := store.Job(id)
	require.True(t, ok)
	assert.Equal(t, domain.RetryJobExhausted, job.Status)
}

func TestClearAll_StopsTimersKeepsJobs(t *testing.T) {
	store := ledger.NewMemoryStore()
	var calls int
	s, ft := newTestScheduler(store, func(context.Context, uuid.UUID) error {
		calls++
		return nil
	})
	id := uuid.New()
	require.NoError(t, s.Enqueue(context.Background(), id, 1))
	tm := ft.last()

	s.ClearAll()

	assert.True(t, tm.stopped)
	assert.Zero(t, s.Len())
	_, ok := store.Job(id)
	assert.True(t, ok)

	// a callback that raced the stop must not process
	tm.fn()
	assert.Zero(t, calls)
}

func TestRestore_RearmsWithRemainingDelay(t *testing.T) {
	store := ledger.NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	due := uuid.New()
	later := uuid.New()
	exhausted := uuid.New()
	ctx := context.Background()
	require.NoError(t, store.SaveJob(ctx, &domain.CreditRetryJob{PaymentID: due, Attempt: 2, RunAt: now.Add(-time.Minute), Status: domain.RetryJobPending}))
	require.NoError(t, store.SaveJob(ctx, &domain.CreditRetryJob{PaymentID: later, Attempt: 1, RunAt: now.Add(3 * time.Second), Status: domain.RetryJobPending}))
	require.NoError(t, store.MarkJobExhausted(ctx, exhausted, 5, "gone"))

	var processed []uuid.UUID
	ft := &fakeTimers{}
	s := NewScheduler(store, func(_ context.Context, id uuid.UUID) error {
		processed = append(processed, id)
		return nil
	}, testCfg, quietLogger(), WithAfterFunc(ft.AfterFunc), WithClock(func() time.Time { return now }))

	n, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.Pending(due))
	assert.True(t, s.Pending(later))
	assert.False(t, s.Pending(exhausted))

	delays := map[time.Duration]bool{}
	for _, tm := range ft.timers {
		delays[tm.delay] = true
	}
	assert.True(t, delays[0])
	assert.True(t, delays[3*time.Second])

	for _, tm := range ft.timers {
		tm.fn()
	}
	assert.ElementsMatch(t, []uuid.UUID{due, later}, processed)

	n, err = s.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRealTimer_Fires(t *testing.T) {
	store := ledger.NewMemoryStore()
	done := make(chan uuid.UUID, 1)
	s := NewScheduler(store, func(_ context.Context, id uuid.UUID) error {
		done <- id
		return nil
	}, Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, quietLogger())

	id := uuid.New()
	require.NoError(t, s.Enqueue(context.Background(), id, 1))

	select {
	case got := <-done:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestClearAll_FailureDuringShutdownIsNotRearmed(t *testing.T) {
	store := ledger.NewMemoryStore()
	started := make(chan struct{})
	release := make(chan struct{})
	s, ft := newTestScheduler(store, func(context.Context, uuid.UUID) error {
		close(started)
		<-release
		return errors.New("pool closed")
	})
	id := uuid.New()
	require.NoError(t, s.Enqueue(context.Background(), id, 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ft.last().fn()
	}()
	<-started

	s.ClearAll()
	close(release)
	<-done

	assert.Equal(t, 1, ft.count(), "no timer armed after ClearAll")
	assert.Zero(t, s.Len())

	job, ok := store.Job(id)
	require.True(t, ok, "failed attempt stays durable for the next start")
	assert.Equal(t, domain.RetryJobPending, job.Status)
	assert.Equal(t, 2, job.Attempt)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "pool closed", *job.LastError)

	n, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// gatedStore blocks SaveJob until released so tests can observe the lock.
type gatedStore struct {
	*ledger.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) SaveJob(ctx context.Context, job *domain.CreditRetryJob) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryStore.SaveJob(ctx, job)
}

func TestEnqueue_DoesNotHoldLockDuringSave(t *testing.T) {
	store := &gatedStore{MemoryStore: ledger.NewMemoryStore(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	s, ft := newTestScheduler(store, nil)
	id := uuid.New()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Enqueue(context.Background(), id, 1) }()
	<-store.entered

	// reservation is visible and readers are not blocked by the write
	assert.True(t, s.Pending(id))
	assert.Zero(t, ft.count())

	close(store.release)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, ft.count())
	assert.True(t, s.Pending(id))
}
