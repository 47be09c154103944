package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	checkPoolTotal = "pool_total"
	checkLocked    = "locked"
)

// LedgerSnapshot reads pool balances and journal sums.
type LedgerSnapshot interface {
	SumJournal(ctx context.Context) ([]models.JournalTotals, error)
	ListPools(ctx context.Context) ([]models.PoolBalance, error)
}

// Mismatch is one failed ledger check.
type Mismatch struct {
	Currency string
	Check    string
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

// ReconciliationService verifies that every pool balance agrees with its journal.
type ReconciliationService struct {
	ledger LedgerSnapshot
}

func NewReconciliationService(ledger LedgerSnapshot) *ReconciliationService {
	return &ReconciliationService{ledger: ledger}
}

// Run checks, per currency, that available+locked equals the journal net and
// that locked equals the outstanding locks. Mismatches are logged, counted
// and returned.
func (s *ReconciliationService) Run(ctx context.Context) ([]Mismatch, error) {
	pools, err := s.ledger.ListPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	totals, err := s.ledger.SumJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum journal: %w", err)
	}

	byCurrency := make(map[string]models.JournalTotals, len(totals))
	for _, t := range totals {
		byCurrency[t.CurrencyCode] = t
	}

	var mismatches []Mismatch
	seen := make(map[string]struct{}, len(pools))
	for _, pool := range pools {
		seen[pool.CurrencyCode] = struct{}{}
		observability.SetPoolBalances(pool.CurrencyCode, pool.Available.InexactFloat64(), pool.Locked.InexactFloat64())

		journal, ok := byCurrency[pool.CurrencyCode]
		if !ok {
			journal = zeroTotals(pool.CurrencyCode)
		}
		if total := pool.Available.Add(pool.Locked); !total.Equal(journal.Net()) {
			mismatches = append(mismatches, Mismatch{Currency: pool.CurrencyCode, Check: checkPoolTotal, Expected: journal.Net(), Actual: total})
		}
		if !pool.Locked.Equal(journal.OutstandingLocks()) {
			mismatches = append(mismatches, Mismatch{Currency: pool.CurrencyCode, Check: checkLocked, Expected: journal.OutstandingLocks(), Actual: pool.Locked})
		}
	}

	for currency, journal := range byCurrency {
		if _, ok := seen[currency]; ok {
			continue
		}
		mismatches = append(mismatches, Mismatch{Currency: currency, Check: checkPoolTotal, Expected: journal.Net(), Actual: decimal.Zero})
	}

	for _, m := range mismatches {
		observability.IncrementReconciliationMismatch(m.Currency, m.Check)
		zap.L().Error("CRITICAL: ledger mismatch detected",
			zap.String("currency", m.Currency),
			zap.String("check", m.Check),
			zap.String("expected", m.Expected.String()),
			zap.String("actual", m.Actual.String()),
		)
	}
	if len(mismatches) == 0 {
		zap.L().Info("Ledger Balanced", zap.Int("pools", len(pools)))
	}
	return mismatches, nil
}

func zeroTotals(currency string) models.JournalTotals {
	return models.JournalTotals{
		CurrencyCode: currency,
		Locked:       decimal.Zero,
		Released:     decimal.Zero,
		Debited:      decimal.Zero,
		Fees:         decimal.Zero,
		Rebalanced:   decimal.Zero,
	}
}
