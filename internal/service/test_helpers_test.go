package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/db"
	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/events"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the Postgres instance named by DATABASE_URL,
// migrates it and empties every pool and journal.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := db.Connect(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	require.NoError(t, db.Migrate(pool))

	for _, stmt := range []string{
		"TRUNCATE TABLE ledger_entries, transactions, exchange_rates, failed_transaction_events, audit_log RESTART IDENTITY CASCADE",
		"UPDATE liquidity_pools SET available_balance = 0, locked_balance = 0",
	} {
		if _, err := pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("Failed to reset database: %v", err)
		}
	}
	return pool
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

// fakeTransactionStore keeps transactions in memory and enforces the same
// status preconditions as the Postgres store.
type fakeTransactionStore struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.Transaction
	byInternal map[string]uuid.UUID
	failed     []*models.FailedTransferEvent
	released   []uuid.UUID
	flows      []models.CurrencyFlow
	flowErr    error

	// raceOnCreate is stored as if a concurrent request won the insert.
	raceOnCreate *models.Transaction
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{
		byID:       map[uuid.UUID]*models.Transaction{},
		byInternal: map[string]uuid.UUID{},
	}
}

func (s *fakeTransactionStore) put(tx *models.Transaction) {
	cp := *tx
	s.byID[tx.ID] = &cp
	s.byInternal[tx.InternalTransferID] = tx.ID
}

func (s *fakeTransactionStore) seed(tx *models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(tx)
}

func (s *fakeTransactionStore) get(id uuid.UUID) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.byID[id]
}

func (s *fakeTransactionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *fakeTransactionStore) GetByInternalID(_ context.Context, internalTransferID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byInternal[internalTransferID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *fakeTransactionStore) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raceOnCreate != nil {
		s.put(s.raceOnCreate)
		s.raceOnCreate = nil
	}
	if _, ok := s.byInternal[tx.InternalTransferID]; ok {
		return domain.ErrDuplicate
	}
	s.put(tx)
	return nil
}

func (s *fakeTransactionStore) UpdateStatus(_ context.Context, arg repository.UpdateTransactionStatusParams) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[arg.ID]
	if !ok || tx.Status != arg.From {
		return nil, domain.ErrNotFound
	}
	if !canTransition(arg.From, arg.To) {
		return nil, domain.Wrap(domain.ErrUnknown, fmt.Errorf("invalid transition %s -> %s", arg.From, arg.To))
	}
	tx.Status = arg.To
	if arg.LockedID != nil {
		tx.LockedID = arg.LockedID
	}
	if arg.FailureReason != "" {
		tx.FailureReason = arg.FailureReason
	}
	cp := *tx
	return &cp, nil
}

func (s *fakeTransactionStore) MarkSettlement(_ context.Context, arg repository.MarkSettlementParams) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[arg.ID]
	if !ok || tx.Status != arg.ExpectedStatus || tx.SettlementStatus.IsSet() {
		return nil, domain.ErrNotFound
	}
	if arg.Status != "" {
		tx.Status = arg.Status
	}
	tx.SettlementStatus = arg.SettlementStatus
	tx.SettlementMessage = arg.Message
	if arg.UnlockedID != nil {
		tx.UnlockedID = arg.UnlockedID
	}
	if arg.SettledAt != nil {
		tx.ActualSettlementTime = arg.SettledAt
	}
	cp := *tx
	return &cp, nil
}

func (s *fakeTransactionStore) ClaimDue(_ context.Context, limit int32, _ time.Duration) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range s.byID {
		if !tx.SettlementStatus.IsSet() && tx.Status.Settleable() {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledSettlementTime.Before(out[j].ScheduledSettlementTime)
	})
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeTransactionStore) RecordSettlementFailure(_ context.Context, id uuid.UUID, message string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	tx.SettlementAttempts++
	tx.SettlementMessage = message
	return tx.SettlementAttempts, nil
}

func (s *fakeTransactionStore) ReleaseClaim(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	return nil
}

func (s *fakeTransactionStore) ListCompletedFlow(context.Context, time.Time) ([]models.CurrencyFlow, error) {
	return s.flows, s.flowErr
}

func (s *fakeTransactionStore) RecordFailedTransfer(_ context.Context, event *models.FailedTransferEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, event)
	return nil
}

// fakeLedger is an in-memory liquidity ledger.
type fakeLedger struct {
	mu       sync.Mutex
	pools    map[string]*models.PoolBalance
	locks    map[int64]*models.LedgerEntry
	releases map[int64]*models.LedgerEntry
	nextID   int64

	lockErr      error
	unlockErr    error
	debitErr     error
	rebalanceErr map[string]error
	lockCalls    int
}

func newFakeLedger(available map[string]string) *fakeLedger {
	l := &fakeLedger{
		pools:        map[string]*models.PoolBalance{},
		locks:        map[int64]*models.LedgerEntry{},
		releases:     map[int64]*models.LedgerEntry{},
		rebalanceErr: map[string]error{},
	}
	for cur, amount := range available {
		l.pools[cur] = &models.PoolBalance{CurrencyCode: cur, Available: dec(amount), Locked: decimal.Zero}
	}
	return l
}

func (l *fakeLedger) pool(currency string) models.PoolBalance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.pools[currency]
}

func (l *fakeLedger) LockBalance(_ context.Context, m models.LiquidityMovement) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockCalls++
	if l.lockErr != nil {
		return 0, l.lockErr
	}
	total := m.Amount.Add(m.Margin)
	p, ok := l.pools[m.Currency]
	if !ok || p.Available.LessThan(total) {
		return 0, domain.ErrInsufficientFunds
	}
	p.Available = p.Available.Sub(total)
	p.Locked = p.Locked.Add(total)
	l.nextID++
	l.locks[l.nextID] = &models.LedgerEntry{
		ID:            l.nextID,
		TransactionID: m.TransactionID,
		CurrencyCode:  m.Currency,
		Kind:          domain.EntryLock,
		Amount:        m.Amount,
		Margin:        m.Margin,
	}
	return l.nextID, nil
}

func (l *fakeLedger) release(lockID int64, debit bool) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[lockID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if _, ok := l.releases[lockID]; ok {
		return 0, domain.ErrDuplicate
	}
	p := l.pools[entry.CurrencyCode]
	p.Locked = p.Locked.Sub(entry.Total())
	kind := domain.EntryDebit
	if !debit {
		p.Available = p.Available.Add(entry.Total())
		kind = domain.EntryUnlock
	}
	l.nextID++
	ref := lockID
	l.releases[lockID] = &models.LedgerEntry{
		ID:               l.nextID,
		TransactionID:    entry.TransactionID,
		CurrencyCode:     entry.CurrencyCode,
		Kind:             kind,
		Amount:           entry.Amount,
		ReferenceEntryID: &ref,
		CreatedAt:        testNow.Add(-time.Second),
	}
	return l.nextID, nil
}

func (l *fakeLedger) GetRelease(_ context.Context, lockID int64) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rel, ok := l.releases[lockID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rel
	return &cp, nil
}

func (l *fakeLedger) UnlockBalance(_ context.Context, lockID int64) (int64, error) {
	if l.unlockErr != nil {
		return 0, l.unlockErr
	}
	return l.release(lockID, false)
}

func (l *fakeLedger) DebitLockedBalance(_ context.Context, lockID int64) (int64, error) {
	if l.debitErr != nil {
		return 0, l.debitErr
	}
	return l.release(lockID, true)
}

func (l *fakeLedger) GetBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pools[currency]; ok {
		return p.Available, nil
	}
	return decimal.Zero, nil
}

func (l *fakeLedger) GetLockEntry(_ context.Context, lockID int64) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[lockID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (l *fakeLedger) GetPool(_ context.Context, currency string) (*models.PoolBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[currency]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (l *fakeLedger) Rebalance(_ context.Context, currency string, amount decimal.Decimal) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rebalanceErr[currency]; err != nil {
		return 0, err
	}
	p, ok := l.pools[currency]
	if !ok {
		return 0, domain.ErrNotFound
	}
	p.Available = p.Available.Add(amount)
	l.nextID++
	return l.nextID, nil
}

type fakeCatalog struct {
	currencies map[string]models.Currency
	err        error
}

func (c *fakeCatalog) ListSupported(context.Context) (map[string]models.Currency, error) {
	return c.currencies, c.err
}

func testCurrency(code string, precision int32, margin string) models.Currency {
	c := models.Currency{Code: code, SettlementWindow: time.Hour, Enabled: true, Precision: precision}
	if margin != "" {
		m := dec(margin)
		c.MarginRate = &m
	}
	return c
}

type fakeQuoter struct {
	rates map[string]string
}

func (q *fakeQuoter) GetLatestRate(_ context.Context, from, to string) (*models.ExchangeRate, error) {
	pair := CurrencyPair(from, to)
	r, ok := q.rates[pair]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &models.ExchangeRate{ID: 1, CurrencyPair: pair, Rate: dec(r), EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

type fakeProvider struct {
	mu     sync.Mutex
	status domain.TransactionStatus
	err    error
	calls  int
}

func (p *fakeProvider) Transfer(context.Context, *models.Transaction) (domain.TransactionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.status, p.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransferEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.TransferEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
