package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/attaboy/wallet/internal/auth"
	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/infra"
	"github.com/attaboy/wallet/internal/ledger"
	"github.com/attaboy/wallet/internal/policy"
	"github.com/attaboy/wallet/internal/provider"
	"github.com/google/uuid"
)

// Scheduler queues a payment for a later credit attempt.
type Scheduler interface {
	Enqueue(ctx context.Context, paymentID uuid.UUID, attempt int) error
}

// PaymentConfig tunes reconciliation and the uncredited sweep.
type PaymentConfig struct {
	StaleAfter time.Duration // PENDING older than this reconciles to EXPIRED
	SweepGrace time.Duration // CONFIRMED and uncredited this long is re-queued
	MaxRetries int           // payments with this many failed credits are left to reconciliation
	SweepBatch int           // uncredited payments queued per sweep; 0 means 100
}

const defaultSweepBatch = 100

// PaymentService handles deposits, provider webhooks and payment crediting.
type PaymentService struct {
	payments  ledger.PaymentStore
	wallets   *WalletService
	registry  *provider.Registry
	scheduler Scheduler
	cfg       PaymentConfig
	metrics   *infra.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	payments ledger.PaymentStore,
	wallets *WalletService,
	registry *provider.Registry,
	scheduler Scheduler,
	cfg PaymentConfig,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		payments:  payments,
		wallets:   wallets,
		registry:  registry,
		scheduler: scheduler,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateDeposit records a PENDING payment and returns where to send the user.
func (s *PaymentService) CreateDeposit(ctx context.Context, req domain.DepositRequest) (*domain.DepositResult, error) {
	if err := domain.ValidateUserID(req.UserID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(req.Currency)
	if err := domain.ValidateCurrency(currency); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePositiveAmount(req.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateMoneyPrecision(req.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := policy.EvaluateWalletLimits(s.wallets.WalletLimits(ctx), domain.TxDeposit, req.Amount).Err(); err != nil {
		return nil, err
	}

	if w, err := s.wallets.store.FindWallet(ctx, req.UserID); err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	} else if w != nil && w.Currency != currency {
		return nil, domain.ErrCurrencyMismatch(w.Currency, currency)
	}

	id := uuid.New()
	redirect, err := adapter.BuildRedirectURL(id, req.UserID, req.Amount, currency, req.ReturnURL)
	if err != nil {
		return nil, domain.ErrProviderUnavailable(string(req.Provider), err)
	}

	now := s.now()
	p := &domain.PaymentTransaction{
		ID:          id,
		UserID:      req.UserID,
		Provider:    req.Provider,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      domain.PaymentPending,
		RedirectURL: &redirect,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	userID := req.UserID
	audit := domain.NewAuditLog(&userID, domain.AuditPaymentCreated, domain.EntityPayment, id.String(), map[string]string{
		"provider": string(req.Provider),
		"amount":   req.Amount.StringFixed(2),
		"currency": currency,
	})
	if err := s.payments.CreatePayment(ctx, p, audit, domain.NewPaymentCreatedEvent(p)); err != nil {
		return nil, domain.ErrInternal("record payment", err)
	}

	s.logger.Info("deposit created", "payment_id", id, "user_id", req.UserID, "provider", req.Provider, "amount", req.Amount.StringFixed(2))
	return &domain.DepositResult{TransactionID: id, RedirectURL: redirect}, nil
}

// HandleWebhook verifies and applies a provider status notification. Duplicate
// and late deliveries are acknowledged without effect. A failed credit after
// confirmation is acknowledged and handed to the retry scheduler.
func (s *PaymentService) HandleWebhook(ctx context.Context, ip string, in domain.WebhookInput) (*domain.WebhookResult, error) {
	adapter, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, s.rejectWebhook(in, ip, err)
	}
	if !adapter.IsWebhookIPAllowed(ip) {
		return nil, s.rejectWebhook(in, ip, domain.ErrIPNotAllowed(ip))
	}
	if !adapter.VerifyWebhookSignature(in, in.Signature) {
		return nil, s.rejectWebhook(in, ip, domain.ErrInvalidSignature())
	}
	if !in.Status.Valid() {
		return nil, s.rejectWebhook(in, ip, domain.ErrValidation("unknown payment status: "+string(in.Status)))
	}

	p, err := s.payments.FindPayment(ctx, in.TransactionID)
	if err != nil {
		return nil, domain.ErrInternal("load payment", err)
	}
	if p == nil {
		return nil, s.rejectWebhook(in, ip, domain.ErrTransactionNotFound(in.TransactionID.String()))
	}
	if p.Provider != in.Provider {
		return nil, s.rejectWebhook(in, ip, domain.ErrProviderMismatch(string(p.Provider), string(in.Provider)))
	}
	if !strings.EqualFold(p.Currency, in.Currency) {
		return nil, s.rejectWebhook(in, ip, domain.ErrCurrencyMismatch(p.Currency, in.Currency))
	}
	if !p.Amount.Equal(in.Amount) {
		return nil, s.rejectWebhook(in, ip, domain.ErrAmountMismatch(p.Amount.StringFixed(2), in.Amount.StringFixed(2)))
	}

	now := s.now()
	signature := in.Signature

	if p.Status.IsTerminal() || p.Status == in.Status {
		if err := s.payments.TouchWebhook(ctx, p.ID, in.ProviderTransactionID, &signature, now); err != nil {
			return nil, domain.ErrInternal("record webhook delivery", err)
		}
		outcome := domain.WebhookDuplicate
		if p.Status.IsTerminal() {
			outcome = domain.WebhookTerminal
		}
		s.metrics.Webhook(string(in.Provider), string(outcome))
		s.logger.Info("webhook acknowledged without transition", "payment_id", p.ID, "status", p.Status, "reported", in.Status, "outcome", outcome)
		return &domain.WebhookResult{Outcome: outcome, Status: p.Status}, nil
	}

	from := p.Status
	event := domain.NewPaymentStatusChangedEvent(p, from, in.Status)
	applied, err := s.payments.TransitionStatus(ctx, ledger.StatusChange{
		PaymentID:             p.ID,
		From:                  from,
		To:                    in.Status,
		ProviderTransactionID: in.ProviderTransactionID,
		Signature:             &signature,
		At:                    now,
		WebhookAt:             &now,
		Audit: domain.NewAuditLog(nil, domain.AuditPaymentStatusChanged, domain.EntityPayment, p.ID.String(), map[string]string{
			"from":     string(from),
			"to":       string(in.Status),
			"provider": string(in.Provider),
		}),
		Event: &event,
	})
	if err != nil {
		return nil, domain.ErrInternal("transition payment", err)
	}
	if !applied {
		// a concurrent delivery moved the payment first
		current, err := s.payments.FindPayment(ctx, p.ID)
		if err != nil || current == nil {
			return nil, domain.ErrInternal("reload payment", err)
		}
		s.metrics.Webhook(string(in.Provider), string(domain.WebhookDuplicate))
		return &domain.WebhookResult{Outcome: domain.WebhookDuplicate, Status: current.Status}, nil
	}

	s.metrics.Webhook(string(in.Provider), string(domain.WebhookTransitioned))
	s.logger.Info("payment status changed", "payment_id", p.ID, "from", from, "to", in.Status, "provider", in.Provider)

	result := &domain.WebhookResult{Outcome: domain.WebhookTransitioned, Status: in.Status}
	if in.Status == domain.PaymentConfirmed {
		p.Status = domain.PaymentConfirmed
		p.ConfirmedAt = &now
		result.Credited, result.CreditScheduled = s.creditOrSchedule(ctx, p)
	}
	return result, nil
}

// ProcessCredit is the retry scheduler's processor: one credit attempt for a
// confirmed payment. ALREADY_CREDITED counts as done.
func (s *PaymentService) ProcessCredit(ctx context.Context, paymentID uuid.UUID) error {
	p, err := s.payments.FindPayment(ctx, paymentID)
	if err != nil {
		return domain.ErrInternal("load payment", err)
	}
	if p == nil {
		return domain.ErrTransactionNotFound(paymentID.String())
	}
	if p.CreditedAt != nil {
		return domain.ErrAlreadyCredited(paymentID.String())
	}
	if p.Status != domain.PaymentConfirmed {
		s.logger.Warn("skipping credit for unconfirmed payment", "payment_id", paymentID, "status", p.Status)
		return nil
	}

	if _, err := s.credit(ctx, p); err != nil {
		if domain.IsCode(err, domain.CodeAlreadyCredited) {
			return err
		}
		if rerr := s.payments.IncrementRetries(ctx, paymentID); rerr != nil {
			s.logger.Warn("increment payment retries", "payment_id", paymentID, "error", rerr)
		}
		return err
	}
	return nil
}

// Reconcile asks the rail for the authoritative status of a payment and applies
// it. Terminal payments are left unchanged, except that a confirmed payment
// which never reached the wallet gets a credit attempt. PAYMENT_RECONCILED is
// written only when the status moves.
func (s *PaymentService) Reconcile(ctx context.Context, actor auth.Principal, paymentID uuid.UUID) (*domain.ReconcileResult, error) {
	if !actor.Role.IsAdmin() {
		return nil, domain.ErrForbidden("reconciliation requires an admin role")
	}
	p, err := s.payments.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, domain.ErrInternal("load payment", err)
	}
	if p == nil {
		return nil, domain.ErrTransactionNotFound(paymentID.String())
	}
	actorID := actor.UserID

	if p.NeedsCredit() {
		credited, err := s.credit(ctx, p)
		if err != nil && !domain.IsCode(err, domain.CodeAlreadyCredited) {
			return nil, err
		}
		if credited {
			s.logger.Info("uncredited payment credited on reconcile", "payment_id", p.ID, "actor", actorID)
		}
		return &domain.ReconcileResult{Changed: false, From: p.Status, To: p.Status, Credited: credited}, nil
	}
	if p.Status.IsTerminal() {
		return &domain.ReconcileResult{Changed: false, From: p.Status, To: p.Status}, nil
	}

	adapter, err := s.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	remote, err := adapter.FetchRemoteStatus(ctx, p)
	if err != nil {
		s.logger.Warn("remote status lookup failed", "payment_id", p.ID, "provider", p.Provider, "error", err)
		return nil, err
	}

	now := s.now()
	target := remote
	if target == domain.PaymentPending && now.Sub(p.CreatedAt) > s.cfg.StaleAfter {
		target = domain.PaymentExpired
	}
	if target == p.Status {
		return &domain.ReconcileResult{Changed: false, From: p.Status, To: p.Status}, nil
	}

	from := p.Status
	event := domain.NewPaymentStatusChangedEvent(p, from, target)
	applied, err := s.payments.TransitionStatus(ctx, ledger.StatusChange{
		PaymentID: p.ID,
		From:      from,
		To:        target,
		At:        now,
		Audit: domain.NewAuditLog(&actorID, domain.AuditPaymentReconciled, domain.EntityPayment, p.ID.String(), map[string]string{
			"from":   string(from),
			"to":     string(target),
			"remote": string(remote),
		}),
		Event: &event,
	})
	if err != nil {
		return nil, domain.ErrInternal("transition payment", err)
	}
	if !applied {
		current, err := s.payments.FindPayment(ctx, p.ID)
		if err != nil || current == nil {
			return nil, domain.ErrInternal("reload payment", err)
		}
		return &domain.ReconcileResult{Changed: false, From: current.Status, To: current.Status}, nil
	}

	s.logger.Info("payment reconciled", "payment_id", p.ID, "from", from, "to", target, "remote", remote, "actor", actorID)
	result := &domain.ReconcileResult{Changed: true, From: from, To: target}
	if target == domain.PaymentConfirmed {
		p.Status = domain.PaymentConfirmed
		p.ConfirmedAt = &now
		result.Credited, _ = s.creditOrSchedule(ctx, p)
	}
	return result, nil
}

// SweepUncredited queues confirmed payments that have waited longer than the
// grace period for their credit. Returns how many were queued.
func (s *PaymentService) SweepUncredited(ctx context.Context) (int, error) {
	batch := s.cfg.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	stuck, err := s.payments.ListUncredited(ctx, s.now().Add(-s.cfg.SweepGrace), batch)
	if err != nil {
		return 0, domain.ErrInternal("list uncredited payments", err)
	}
	queued := 0
	for _, p := range stuck {
		if s.cfg.MaxRetries > 0 && p.Retries >= s.cfg.MaxRetries {
			continue
		}
		if err := s.scheduler.Enqueue(ctx, p.ID, 1); err != nil {
			s.logger.Warn("sweep enqueue failed", "payment_id", p.ID, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger.Info("uncredited payments queued", "count", queued)
	}
	return queued, nil
}

// StartSweeper runs SweepUncredited every interval until ctx is cancelled.
func (s *PaymentService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepUncredited(ctx); err != nil {
				s.logger.Error("uncredited sweep failed", "error", err)
			}
		}
	}
}

// ListPayments returns the user's payments, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentTransaction, error) {
	list, err := s.payments.ListPayments(ctx, userID, limit, offset)
	if err != nil {
		return nil, domain.ErrInternal("list payments", err)
	}
	if list == nil {
		list = []domain.PaymentTransaction{}
	}
	return list, nil
}

// GetPayment returns one payment. Players only see their own.
func (s *PaymentService) GetPayment(ctx context.Context, caller auth.Principal, id uuid.UUID) (*domain.PaymentTransaction, error) {
	p, err := s.payments.FindPayment(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("load payment", err)
	}
	if p == nil || (!caller.Role.IsAdmin() && p.UserID != caller.UserID) {
		return nil, domain.ErrTransactionNotFound(id.String())
	}
	return p, nil
}

// PaymentAudit returns the audit trail of a payment.
func (s *PaymentService) PaymentAudit(ctx context.Context, id uuid.UUID) ([]domain.AuditLog, error) {
	logs, err := s.payments.ListAudit(ctx, domain.EntityPayment, id.String())
	if err != nil {
		return nil, domain.ErrInternal("list payment audit", err)
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	return logs, nil
}

// credit deposits the payment and stamps credited_at. It returns true only
// when this call moved the money.
func (s *PaymentService) credit(ctx context.Context, p *domain.PaymentTransaction) (bool, error) {
	res, err := s.wallets.CreditPayment(ctx, p)
	if err != nil {
		if domain.IsCode(err, domain.CodeAlreadyCredited) {
			// the deposit exists; make sure the payment says so
			s.markCredited(ctx, p, uuid.Nil)
			s.metrics.Credit("already_credited")
			return false, err
		}
		s.metrics.Credit("failed")
		s.logger.Warn("payment credit failed", "payment_id", p.ID, "error", err)
		return false, err
	}

	if err := s.markCredited(ctx, p, res.Transaction.ID); err != nil {
		s.metrics.Credit("failed")
		return false, err
	}
	s.metrics.Credit("credited")
	s.logger.Info("payment credited", "payment_id", p.ID, "user_id", p.UserID, "transaction_id", res.Transaction.ID, "amount", p.Amount.StringFixed(2))
	return true, nil
}

func (s *PaymentService) markCredited(ctx context.Context, p *domain.PaymentTransaction, txID uuid.UUID) error {
	meta := map[string]string{"amount": p.Amount.StringFixed(2), "currency": p.Currency}
	if txID != uuid.Nil {
		meta["transaction_id"] = txID.String()
	}
	audit := domain.NewAuditLog(nil, domain.AuditPaymentCredited, domain.EntityPayment, p.ID.String(), meta)
	if _, err := s.payments.MarkCredited(ctx, p.ID, s.now(), audit, domain.NewPaymentCreditedEvent(p, txID)); err != nil {
		s.logger.Error("stamp payment credited", "payment_id", p.ID, "error", err)
		return domain.ErrInternal("mark payment credited", err)
	}
	return nil
}

// creditOrSchedule credits once; a failure other than ALREADY_CREDITED is
// handed to the scheduler at attempt 1.
func (s *PaymentService) creditOrSchedule(ctx context.Context, p *domain.PaymentTransaction) (credited, scheduled bool) {
	credited, err := s.credit(ctx, p)
	if err == nil || domain.IsCode(err, domain.CodeAlreadyCredited) {
		return credited, false
	}
	if rerr := s.payments.IncrementRetries(ctx, p.ID); rerr != nil {
		s.logger.Warn("increment payment retries", "payment_id", p.ID, "error", rerr)
	}
	if serr := s.scheduler.Enqueue(ctx, p.ID, 1); serr != nil {
		s.logger.Error("schedule payment credit", "payment_id", p.ID, "error", serr)
	}
	return false, true
}

func (s *PaymentService) rejectWebhook(in domain.WebhookInput, ip string, err error) error {
	code := "error"
	if appErr, ok := domain.AsAppError(err); ok {
		code = strings.ToLower(appErr.Code)
	}
	s.metrics.Webhook(string(in.Provider), "rejected_"+code)
	s.logger.Warn("webhook rejected", "provider", in.Provider, "payment_id", in.TransactionID, "ip", ip, "error", err)
	return err
}
