package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/google/uuid"
)

// JobStore persists credit retry jobs so pending work survives a restart.
type JobStore interface {
	SaveJob(ctx context.Context, job *domain.CreditRetryJob) error
	DeleteJob(ctx context.Context, paymentID uuid.UUID) error
	MarkJobExhausted(ctx context.Context, paymentID uuid.UUID, attempt int, lastErr string) error
	ListPendingJobs(ctx context.Context) ([]domain.CreditRetryJob, error)
}

// Processor attempts the credit for one payment.
type Processor func(ctx context.Context, paymentID uuid.UUID) error

// Timer is the cancellable handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Config bounds the retry schedule.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Scheduler re-attempts failed payment credits with capped exponential backoff.
// At most one timer is armed per payment. A pending entry whose timer is nil is
// a reservation held while its job is written.
type Scheduler struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*armed
	closed  bool

	store     JobStore
	process   Processor
	cfg       Config
	afterFunc AfterFunc
	now       func() time.Time
	metrics   *infra.Metrics
	logger    *slog.Logger
}

type armed struct {
	attempt int
	timer   Timer
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *infra.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler. process is called from timer goroutines.
func NewScheduler(store JobStore, process Processor, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		pending:   make(map[uuid.UUID]*armed),
		store:     store,
		process:   process,
		cfg:       cfg,
		afterFunc: stdAfterFunc,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeDelay returns min(base * 2^(attempt-1), max).
func (s *Scheduler) ComputeDelay(attempt int) time.Duration {
	return computeDelay(s.cfg.BaseDelay, s.cfg.MaxDelay, attempt)
}

func computeDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		if d >= maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Enqueue schedules a credit attempt for the payment. An attempt beyond
// MaxRetries marks the job exhausted instead. A second call while a timer is
// armed for the same payment is a no-op.
func (s *Scheduler) Enqueue(ctx context.Context, paymentID uuid.UUID, attempt int) error {
	return s.enqueue(ctx, paymentID, attempt, "")
}

func (s *Scheduler) enqueue(ctx context.Context, paymentID uuid.UUID, attempt int, lastErr string) error {
	if attempt < 1 {
		attempt = 1
	}

	if attempt > s.cfg.MaxRetries {
		s.logger.Error("payment credit permanently failed",
			"payment_id", paymentID, "attempts", attempt-1, "last_error", lastErr)
		s.metrics.Retry("exhausted")
		if err := s.store.MarkJobExhausted(ctx, paymentID, attempt-1, lastErr); err != nil {
			return fmt.Errorf("mark retry job exhausted: %w", err)
		}
		return nil
	}

	// Reserve the slot first so concurrent callers for the same payment see it
	// while the job is written.
	s.mu.Lock()
	if _, ok := s.pending[paymentID]; ok {
		s.mu.Unlock()
		return nil
	}
	closed := s.closed
	slot := &armed{attempt: attempt}
	if !closed {
		s.pending[paymentID] = slot
	}
	s.mu.Unlock()

	delay := s.ComputeDelay(attempt)
	job := &domain.CreditRetryJob{
		PaymentID: paymentID,
		Attempt:   attempt,
		RunAt:     s.now().Add(delay).UTC(),
		Status:    domain.RetryJobPending,
	}
	if lastErr != "" {
		job.LastError = &lastErr
	}
	saveErr := s.store.SaveJob(ctx, job)
	if saveErr != nil {
		s.logger.Warn("retry job not persisted", "payment_id", paymentID, "error", saveErr)
	}

	s.mu.Lock()
	armedNow := !closed && s.pending[paymentID] == slot
	if armedNow {
		s.arm(context.WithoutCancel(ctx), paymentID, slot, delay)
	}
	s.mu.Unlock()

	if armedNow {
		s.metrics.Retry("scheduled")
		s.logger.Info("payment credit retry scheduled", "payment_id", paymentID, "attempt", attempt, "delay", delay)
	} else {
		s.logger.Info("scheduler closed, retry left for restore", "payment_id", paymentID, "attempt", attempt)
	}

	if saveErr != nil {
		return fmt.Errorf("save retry job: %w", saveErr)
	}
	return nil
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(ctx context.Context, paymentID uuid.UUID, a *armed, delay time.Duration) {
	a.timer = s.afterFunc(delay, func() { s.fire(ctx, paymentID, a) })
	s.pending[paymentID] = a
	s.metrics.SetRetryPending(len(s.pending))
}

func (s *Scheduler) fire(ctx context.Context, paymentID uuid.UUID, self *armed) {
	s.mu.Lock()
	if cur, ok := s.pending[paymentID]; !ok || cur != self {
		s.mu.Unlock()
		return
	}
	delete(s.pending, paymentID)
	s.metrics.SetRetryPending(len(s.pending))
	attempt := self.attempt
	s.mu.Unlock()

	err := s.process(ctx, paymentID)
	if err == nil || domain.IsCode(err, domain.CodeAlreadyCredited) {
		s.metrics.Retry("succeeded")
		if derr := s.store.DeleteJob(ctx, paymentID); derr != nil {
			s.logger.Warn("delete retry job", "payment_id", paymentID, "error", derr)
		}
		return
	}

	s.metrics.Retry("failed")
	s.logger.Warn("payment credit retry failed", "payment_id", paymentID, "attempt", attempt, "error", err)
	if err := s.enqueue(ctx, paymentID, attempt+1, err.Error()); err != nil {
		s.logger.Error("reschedule payment credit", "payment_id", paymentID, "error", err)
	}
}

// ClearAll stops every armed timer and closes the scheduler. Failures reported
// afterwards are persisted but not re-armed; durable jobs are left for Restore.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, a := range s.pending {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(s.pending, id)
	}
	s.metrics.SetRetryPending(0)
}

// Restore re-arms every PENDING job with its remaining delay. Returns the number armed.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	jobs, err := s.store.ListPendingJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending retry jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil
	}

	base := context.WithoutCancel(ctx)
	now := s.now()
	restored := 0
	for _, job := range jobs {
		if _, ok := s.pending[job.PaymentID]; ok {
			continue
		}
		delay := job.RunAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.arm(base, job.PaymentID, &armed{attempt: job.Attempt}, delay)
		restored++
	}
	if restored > 0 {
		s.logger.Info("restored payment credit retries", "count", restored)
	}
	return restored, nil
}

// Pending reports whether a timer is armed for the payment.
func (s *Scheduler) Pending(paymentID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[paymentID]
	return ok
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
