package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LiquidityService is the Postgres liquidity ledger. Each mutation locks the
// currency's pool row, so calls for one currency serialize while calls for
// different currencies run in parallel. The journal append and the balance
// update commit in the same transaction.
type LiquidityService struct {
	store QueryStore
}

func NewLiquidityService(store QueryStore) *LiquidityService {
	return &LiquidityService{store: store}
}

// LockBalance reserves amount+margin of the movement's currency and returns
// the id of the lock entry.
func (s *LiquidityService) LockBalance(ctx context.Context, m models.LiquidityMovement) (lockID int64, err error) {
	ctx, span := observability.StartSpan(ctx, "liquidity.lock_balance",
		attribute.String("currency", m.Currency),
		attribute.String("transaction_id", m.TransactionID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	if m.Amount.Sign() <= 0 || m.Margin.Sign() < 0 {
		return 0, domain.Wrap(domain.ErrUnknown, fmt.Errorf("invalid movement amount %s margin %s", m.Amount, m.Margin))
	}
	total := m.Amount.Add(m.Margin)

	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		pool, err := q.LockPool(ctx, m.Currency)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if pool == nil || pool.Available.LessThan(total) {
			available := decimal.Zero
			if pool != nil {
				available = pool.Available
			}
			return domain.Wrap(domain.ErrInsufficientFunds,
				fmt.Errorf("pool %s has %s available, %s required", m.Currency, available, total))
		}

		if _, err := q.AdjustPool(ctx, m.Currency, total.Neg(), total); err != nil {
			return err
		}
		if _, err := q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
			TransactionID: m.TransactionID,
			CurrencyCode:  m.Currency,
			Kind:          domain.EntryMarginLock,
			Amount:        m.Margin,
			FromAccount:   domain.PoolAccount(m.Currency),
			ToAccount:     domain.SystemAccount,
			Description:   fmt.Sprintf("Margin for transaction %s", m.TransactionID),
		}); err != nil {
			return err
		}
		description := m.Description
		if description == "" {
			description = fmt.Sprintf("Lock funds for transaction %s", m.TransactionID)
		}
		id, err := q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
			TransactionID: m.TransactionID,
			CurrencyCode:  m.Currency,
			Kind:          domain.EntryLock,
			Amount:        m.Amount,
			Margin:        m.Margin,
			FromAccount:   domain.PoolAccount(m.Currency),
			ToAccount:     domain.SystemAccount,
			Description:   description,
		})
		if err != nil {
			return err
		}
		lockID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	zap.L().Debug("locked pool balance",
		zap.String("currency", m.Currency),
		zap.String("amount", m.Amount.String()),
		zap.String("margin", m.Margin.String()),
		zap.Int64("lock_id", lockID),
	)
	return lockID, nil
}

// UnlockBalance returns a lock's amount and margin to the available balance.
func (s *LiquidityService) UnlockBalance(ctx context.Context, lockID int64) (int64, error) {
	return s.release(ctx, lockID, false)
}

// DebitLockedBalance removes a lock's amount and margin from the pool for good.
func (s *LiquidityService) DebitLockedBalance(ctx context.Context, lockID int64) (int64, error) {
	return s.release(ctx, lockID, true)
}

func (s *LiquidityService) release(ctx context.Context, lockID int64, debit bool) (entryID int64, err error) {
	op := "liquidity.unlock_balance"
	if debit {
		op = "liquidity.debit_locked_balance"
	}
	ctx, span := observability.StartSpan(ctx, op, attribute.Int64("lock_id", lockID))
	defer func() { observability.EndSpan(span, err) }()

	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		lock, err := q.GetLockEntry(ctx, lockID)
		if err != nil {
			return err
		}

		pool, err := q.LockPool(ctx, lock.CurrencyCode)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if _, err := q.GetRelease(ctx, lockID); err == nil {
			return domain.Wrap(domain.ErrDuplicate, fmt.Errorf("lock %d already released", lockID))
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		total := lock.Total()
		if pool == nil || pool.Locked.LessThan(total) {
			locked := decimal.Zero
			if pool != nil {
				locked = pool.Locked
			}
			return domain.Wrap(domain.ErrInsufficientFunds,
				fmt.Errorf("pool %s has %s locked, lock %d holds %s", lock.CurrencyCode, locked, lockID, total))
		}

		ref := lockID
		if debit {
			entryID, err = s.debitEntries(ctx, q, lock, total, &ref)
		} else {
			entryID, err = s.unlockEntries(ctx, q, lock, total, &ref)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return entryID, nil
}

func (s *LiquidityService) unlockEntries(ctx context.Context, q *repository.Queries, lock *models.LedgerEntry, total decimal.Decimal, ref *int64) (int64, error) {
	if _, err := q.AdjustPool(ctx, lock.CurrencyCode, total, total.Neg()); err != nil {
		return 0, err
	}
	id, err := q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		TransactionID:    lock.TransactionID,
		CurrencyCode:     lock.CurrencyCode,
		Kind:             domain.EntryUnlock,
		Amount:           lock.Amount,
		FromAccount:      domain.SystemAccount,
		ToAccount:        domain.PoolAccount(lock.CurrencyCode),
		ReferenceEntryID: ref,
		Release:          true,
		Description:      fmt.Sprintf("Unlock position %d", lock.ID),
	})
	if err != nil {
		return 0, err
	}
	if _, err := q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		TransactionID:    lock.TransactionID,
		CurrencyCode:     lock.CurrencyCode,
		Kind:             domain.EntryMarginUnlock,
		Amount:           lock.Margin,
		FromAccount:      domain.SystemAccount,
		ToAccount:        domain.PoolAccount(lock.CurrencyCode),
		ReferenceEntryID: ref,
		Description:      fmt.Sprintf("Margin unlock on %s", lock.TransactionID),
	}); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *LiquidityService) debitEntries(ctx context.Context, q *repository.Queries, lock *models.LedgerEntry, total decimal.Decimal, ref *int64) (int64, error) {
	if _, err := q.AdjustPool(ctx, lock.CurrencyCode, decimal.Zero, total.Neg()); err != nil {
		return 0, err
	}
	if _, err := q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		TransactionID:    lock.TransactionID,
		CurrencyCode:     lock.CurrencyCode,
		Kind:             domain.EntryDebit,
		Amount:           lock.Margin,
		FromAccount:      domain.SystemAccount,
		ToAccount:        domain.SystemAccount,
		ReferenceEntryID: ref,
		Description:      fmt.Sprintf("Margin on %s", lock.TransactionID),
	}); err != nil {
		return 0, err
	}
	return q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		TransactionID:    lock.TransactionID,
		CurrencyCode:     lock.CurrencyCode,
		Kind:             domain.EntryDebit,
		Amount:           lock.Amount,
		FromAccount:      domain.SystemAccount,
		ToAccount:        domain.SystemAccount,
		ReferenceEntryID: ref,
		Release:          true,
		Description:      fmt.Sprintf("Debit position %d", lock.ID),
	})
}

// GetBalance returns the available balance of currency. A currency without a
// pool has a zero balance.
func (s *LiquidityService) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	pool, err := s.store.Queries().GetPool(ctx, currency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return pool.Available, nil
}

func (s *LiquidityService) GetPool(ctx context.Context, currency string) (*models.PoolBalance, error) {
	return s.store.Queries().GetPool(ctx, currency)
}

func (s *LiquidityService) ListPools(ctx context.Context) ([]models.PoolBalance, error) {
	return s.store.Queries().ListPools(ctx)
}

// GetLockEntry returns the lock entry lockID, or ErrNotFound.
func (s *LiquidityService) GetLockEntry(ctx context.Context, lockID int64) (*models.LedgerEntry, error) {
	return s.store.Queries().GetLockEntry(ctx, lockID)
}

// GetRelease returns the principal entry that released lockID: an unlock
// entry, or the debit entry of a settled lock. It returns ErrNotFound while
// the lock is still held.
func (s *LiquidityService) GetRelease(ctx context.Context, lockID int64) (*models.LedgerEntry, error) {
	return s.store.Queries().GetRelease(ctx, lockID)
}

// Rebalance credits amount from the master reserve to the currency's pool
// and returns the rebalance entry id.
func (s *LiquidityService) Rebalance(ctx context.Context, currency string, amount decimal.Decimal) (entryID int64, err error) {
	ctx, span := observability.StartSpan(ctx, "liquidity.rebalance", attribute.String("currency", currency))
	defer func() { observability.EndSpan(span, err) }()

	if amount.Sign() <= 0 {
		return 0, domain.Wrap(domain.ErrUnknown, fmt.Errorf("rebalance amount must be positive, got %s", amount))
	}

	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if _, err := q.LockPool(ctx, currency); err != nil {
			return err
		}
		if _, err := q.AdjustPool(ctx, currency, amount, decimal.Zero); err != nil {
			return err
		}
		id, err := q.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
			CurrencyCode: currency,
			Kind:         domain.EntryRebalance,
			Amount:       amount,
			FromAccount:  domain.MasterPoolAccount,
			ToAccount:    domain.PoolAccount(currency),
			Description:  fmt.Sprintf("Rebalance %s pool", currency),
		})
		entryID = id
		return err
	})
	if err != nil {
		return 0, err
	}
	return entryID, nil
}
