package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const rebalanceLockKey = "rebalance:sweep"

// Locker runs fn only when the named lock could be taken.
type Locker interface {
	TryWithLock(ctx context.Context, key string, fn func(context.Context) error) (bool, error)
}

type RebalanceConfig struct {
	Lookback     time.Duration
	Threshold    decimal.Decimal
	MinAmount    decimal.Decimal
	SafetyBuffer decimal.Decimal
}

// DefaultRebalanceConfig is 30m of lookback, a 0.2 ratio threshold, a 1000
// minimum top-up and a 30% safety buffer.
func DefaultRebalanceConfig() RebalanceConfig {
	return RebalanceConfig{
		Lookback:     30 * time.Minute,
		Threshold:    decimal.RequireFromString("0.2"),
		MinAmount:    decimal.NewFromInt(1000),
		SafetyBuffer: decimal.RequireFromString("0.3"),
	}
}

// RebalanceReport summarizes one sweep.
type RebalanceReport struct {
	Skipped    bool
	Rebalanced map[string]decimal.Decimal
	Failed     map[string]error
}

// RebalanceService tops up pools whose available balance runs low against
// recent completed outbound flow.
type RebalanceService struct {
	transactions TransactionStore
	ledger       LiquidityLedger
	locker       Locker
	cfg          RebalanceConfig
	now          func() time.Time
}

// NewRebalanceService builds the rebalancer. locker may be nil, in which case
// sweeps run unguarded and rely on the pool row lock alone.
func NewRebalanceService(transactions TransactionStore, ledger LiquidityLedger, locker Locker, cfg RebalanceConfig) *RebalanceService {
	return &RebalanceService{
		transactions: transactions,
		ledger:       ledger,
		locker:       locker,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Run performs one sweep. When another replica holds the sweep lock the
// report is marked Skipped.
func (s *RebalanceService) Run(ctx context.Context) (RebalanceReport, error) {
	if s.locker == nil {
		return s.sweep(ctx)
	}

	var report RebalanceReport
	acquired, err := s.locker.TryWithLock(ctx, rebalanceLockKey, func(ctx context.Context) error {
		var sweepErr error
		report, sweepErr = s.sweep(ctx)
		return sweepErr
	})
	if err != nil {
		return report, err
	}
	if !acquired {
		zap.L().Debug("rebalance sweep held by another replica")
		return RebalanceReport{Skipped: true}, nil
	}
	return report, nil
}

func (s *RebalanceService) sweep(ctx context.Context) (report RebalanceReport, err error) {
	ctx, span := observability.StartSpan(ctx, "rebalance.sweep")
	defer func() { observability.EndSpan(span, err) }()

	report = RebalanceReport{
		Rebalanced: map[string]decimal.Decimal{},
		Failed:     map[string]error{},
	}

	flows, err := s.transactions.ListCompletedFlow(ctx, s.now().Add(-s.cfg.Lookback))
	if err != nil {
		return report, fmt.Errorf("list completed flow: %w", err)
	}

	for _, flow := range flows {
		amount, err := s.rebalanceCurrency(ctx, flow.CurrencyCode, flow.Flow)
		switch {
		case err != nil:
			observability.IncrementRebalance(flow.CurrencyCode, "error")
			zap.L().Error("rebalance currency failed", zap.String("currency", flow.CurrencyCode), zap.Error(err))
			report.Failed[flow.CurrencyCode] = err
		case amount.IsPositive():
			observability.IncrementRebalance(flow.CurrencyCode, "rebalanced")
			observability.AddRebalancedAmount(flow.CurrencyCode, amount.InexactFloat64())
			report.Rebalanced[flow.CurrencyCode] = amount
		}
	}
	return report, nil
}

// rebalanceCurrency returns the amount added to the pool, zero when no top-up
// was needed.
func (s *RebalanceService) rebalanceCurrency(ctx context.Context, currency string, flow decimal.Decimal) (decimal.Decimal, error) {
	if !flow.IsPositive() {
		return decimal.Zero, nil
	}

	pool, err := s.ledger.GetPool(ctx, currency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			zap.L().Warn("no liquidity pool for currency", zap.String("currency", currency))
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	ratio := pool.Available.Div(flow)
	if !ratio.LessThan(s.cfg.Threshold) {
		return decimal.Zero, nil
	}

	target := flow.Mul(decimal.NewFromInt(1).Add(s.cfg.SafetyBuffer))
	shortfall := target.Sub(pool.Available)
	if shortfall.LessThan(s.cfg.MinAmount) {
		observability.IncrementRebalance(currency, "below_minimum")
		zap.L().Info("shortfall below minimum rebalance amount",
			zap.String("currency", currency),
			zap.String("shortfall", shortfall.String()),
			zap.String("minimum", s.cfg.MinAmount.String()),
		)
		return decimal.Zero, nil
	}

	if _, err := s.ledger.Rebalance(ctx, currency, shortfall); err != nil {
		return decimal.Zero, err
	}

	zap.L().Info("pool rebalanced",
		zap.String("currency", currency),
		zap.String("flow", flow.String()),
		zap.String("available_before", pool.Available.String()),
		zap.String("amount", shortfall.String()),
	)
	return shortfall, nil
}
