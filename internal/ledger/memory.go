package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store, PaymentStore and retry job store.
// Each wallet has its own mutex, so writers to one wallet are linearized and
// writers to different wallets run in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	wallets  map[string]*memWallet
	txs      map[string][]domain.Transaction    // by user id, append order
	entries  map[uuid.UUID][]domain.LedgerEntry // by wallet id, append order
	refs     map[refKey]struct{}
	audits   []domain.AuditLog
	events   []domain.OutboxDraft
	payments map[uuid.UUID]*domain.PaymentTransaction
	jobs     map[uuid.UUID]*domain.CreditRetryJob
}

type memWallet struct {
	mu      sync.Mutex
	account domain.WalletAccount
}

type refKey struct {
	walletID  uuid.UUID
	refType   string
	refID     string
	entryType domain.TransactionType
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[string]*memWallet),
		txs:      make(map[string][]domain.Transaction),
		entries:  make(map[uuid.UUID][]domain.LedgerEntry),
		refs:     make(map[refKey]struct{}),
		payments: make(map[uuid.UUID]*domain.PaymentTransaction),
		jobs:     make(map[uuid.UUID]*domain.CreditRetryJob),
	}
}

// --- Store ---

func (s *MemoryStore) GetOrCreateWallet(_ context.Context, userID, currency string) (*domain.WalletAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		now := time.Now().UTC()
		w = &memWallet{account: domain.WalletAccount{
			ID:        uuid.New(),
			UserID:    userID,
			Balance:   decimal.Zero,
			Currency:  currency,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		s.wallets[userID] = w
	}
	acct := w.account
	return &acct, nil
}

func (s *MemoryStore) FindWallet(_ context.Context, userID string) (*domain.WalletAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, nil
	}
	acct := w.account
	return &acct, nil
}

func (s *MemoryStore) WithLockedWallet(ctx context.Context, userID string, fn func(ctx context.Context, wtx WalletTx) error) error {
	s.mu.RLock()
	w, ok := s.wallets[userID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrWalletNotFound(userID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := w.account
	wtx := &memWalletTx{store: s, wallet: &snapshot}
	if err := fn(ctx, wtx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range wtx.staged {
		s.txs[userID] = append(s.txs[userID], *p.Transaction)
		s.entries[p.Entry.WalletID] = append(s.entries[p.Entry.WalletID], *p.Entry)
		if k, ok := refKeyOf(p.Entry); ok {
			s.refs[k] = struct{}{}
		}
		s.audits = append(s.audits, *p.Audit)
		s.events = append(s.events, p.Event)
	}
	if len(wtx.staged) > 0 {
		w.account.Balance = snapshot.Balance
		w.account.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.txs[userID]
	var out []domain.Transaction
	for i := len(all) - 1; i >= 0; i-- {
		if filter.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	return paginate(out, filter), nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, userID string, filter domain.TransactionFilter) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound(userID)
	}
	all := s.entries[w.account.ID]
	var out []domain.LedgerEntry
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		probe := domain.Transaction{Type: e.EntryType, Status: domain.TxStatusCompleted, CreatedAt: e.CreatedAt}
		if filter.Matches(&probe) {
			out = append(out, e)
		}
	}
	return paginate(out, filter), nil
}

func paginate[T any](items []T, filter domain.TransactionFilter) []T {
	f := filter.Normalize()
	if f.Offset >= len(items) {
		return nil
	}
	end := min(f.Offset+f.Limit, len(items))
	return items[f.Offset:end]
}

type memWalletTx struct {
	store  *MemoryStore
	wallet *domain.WalletAccount
	staged []Posting
}

func (t *memWalletTx) Wallet() *domain.WalletAccount { return t.wallet }

func (t *memWalletTx) Record(_ context.Context, p Posting) error {
	if k, ok := refKeyOf(p.Entry); ok {
		t.store.mu.RLock()
		_, exists := t.store.refs[k]
		t.store.mu.RUnlock()
		if exists {
			return ErrDuplicateReference
		}
		for _, staged := range t.staged {
			if sk, _ := refKeyOf(staged.Entry); sk == k {
				return ErrDuplicateReference
			}
		}
	}
	t.staged = append(t.staged, p)
	t.wallet.Balance = p.Transaction.BalanceAfter
	return nil
}

func refKeyOf(e *domain.LedgerEntry) (refKey, bool) {
	if e.ReferenceType == nil || e.ReferenceID == nil {
		return refKey{}, false
	}
	return refKey{walletID: e.WalletID, refType: *e.ReferenceType, refID: *e.ReferenceID, entryType: e.EntryType}, true
}

// Events returns every outbox draft recorded so far.
func (s *MemoryStore) Events() []domain.OutboxDraft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.OutboxDraft(nil), s.events...)
}

// --- PaymentStore ---

func (s *MemoryStore) CreatePayment(_ context.Context, p *domain.PaymentTransaction, audit *domain.AuditLog, event domain.OutboxDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.payments[p.ID] = &cp
	s.audits = append(s.audits, *audit)
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) FindPayment(_ context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPayments(_ context.Context, userID string, limit, offset int) ([]domain.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PaymentTransaction
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return paginate(out, domain.TransactionFilter{Limit: limit, Offset: offset}), nil
}

func (s *MemoryStore) TouchWebhook(_ context.Context, id uuid.UUID, providerTxID, signature *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil
	}
	p.LastWebhookAt = &at
	p.UpdatedAt = at
	if providerTxID != nil && !p.Status.IsTerminal() {
		p.ProviderTransactionID = providerTxID
	}
	if signature != nil {
		p.Signature = signature
	}
	return nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, c StatusChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[c.PaymentID]
	if !ok || p.Status != c.From {
		return false, nil
	}
	p.Status = c.To
	p.UpdatedAt = c.At
	if c.To == domain.PaymentConfirmed {
		at := c.At
		p.ConfirmedAt = &at
	}
	if c.ProviderTransactionID != nil {
		p.ProviderTransactionID = c.ProviderTransactionID
	}
	if c.Signature != nil {
		p.Signature = c.Signature
	}
	if c.WebhookAt != nil {
		p.LastWebhookAt = c.WebhookAt
	}
	if c.Audit != nil {
		s.audits = append(s.audits, *c.Audit)
	}
	if c.Event != nil {
		s.events = append(s.events, *c.Event)
	}
	return true, nil
}

func (s *MemoryStore) MarkCredited(_ context.Context, id uuid.UUID, at time.Time, audit *domain.AuditLog, event domain.OutboxDraft) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok || !p.NeedsCredit() {
		return false, nil
	}
	p.CreditedAt = &at
	p.UpdatedAt = at
	s.audits = append(s.audits, *audit)
	s.events = append(s.events, event)
	return true, nil
}

func (s *MemoryStore) IncrementRetries(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.payments[id]; ok {
		p.Retries++
	}
	return nil
}

func (s *MemoryStore) ListUncredited(_ context.Context, confirmedBefore time.Time, limit int) ([]domain.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PaymentTransaction
	for _, p := range s.payments {
		if p.NeedsCredit() && p.ConfirmedAt != nil && p.ConfirmedAt.Before(confirmedBefore) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfirmedAt.Before(*out[j].ConfirmedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertAudit(_ context.Context, log *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *log)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditLog
	for _, a := range s.audits {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- retry job store ---

func (s *MemoryStore) SaveJob(_ context.Context, job *domain.CreditRetryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.UpdatedAt = time.Now().UTC()
	s.jobs[job.PaymentID] = &cp
	return nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, paymentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, paymentID)
	return nil
}

func (s *MemoryStore) MarkJobExhausted(_ context.Context, paymentID uuid.UUID, attempt int, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[paymentID]
	if !ok {
		job = &domain.CreditRetryJob{PaymentID: paymentID, RunAt: time.Now().UTC()}
		s.jobs[paymentID] = job
	}
	job.Attempt = attempt
	job.Status = domain.RetryJobExhausted
	if lastErr != "" {
		job.LastError = &lastErr
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListPendingJobs(_ context.Context) ([]domain.CreditRetryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CreditRetryJob
	for _, j := range s.jobs {
		if j.Status == domain.RetryJobPending {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

// Job returns the stored retry job for a payment, if any.
func (s *MemoryStore) Job(paymentID uuid.UUID) (domain.CreditRetryJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[paymentID]
	if !ok {
		return domain.CreditRetryJob{}, false
	}
	return *j, true
}

// Audits returns every audit row recorded so far.
func (s *MemoryStore) Audits() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audits...)
}
