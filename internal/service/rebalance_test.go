package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	acquired bool
	keys     []string
}

func (l *fakeLocker) TryWithLock(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	l.keys = append(l.keys, key)
	if !l.acquired {
		return false, nil
	}
	return true, fn(ctx)
}

func newRebalanceFixture(flows []models.CurrencyFlow, pools map[string]string, locker Locker) (*RebalanceService, *fakeLedger) {
	store := newFakeTransactionStore()
	store.flows = flows
	ledger := newFakeLedger(pools)
	svc := NewRebalanceService(store, ledger, locker, DefaultRebalanceConfig())
	svc.now = func() time.Time { return testNow }
	return svc, ledger
}

func TestRebalance_TopsUpToBufferedTarget(t *testing.T) {
	svc, ledger := newRebalanceFixture(
		[]models.CurrencyFlow{{CurrencyCode: "EUR", Flow: dec("10000")}},
		map[string]string{"EUR": "1500"},
		nil,
	)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
	requireDecimal(t, "11500", report.Rebalanced["EUR"])
	requireDecimal(t, "13000", ledger.pool("EUR").Available)
}

func TestRebalance_SkipsHealthyAndSmallShortfalls(t *testing.T) {
	cases := []struct {
		name      string
		flow      string
		available string
	}{
		{name: "ratio_above_threshold", flow: "1000", available: "500"},
		{name: "shortfall_below_minimum", flow: "500", available: "50"},
		{name: "no_flow", flow: "0", available: "0"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			svc, ledger := newRebalanceFixture(
				[]models.CurrencyFlow{{CurrencyCode: "EUR", Flow: dec(tc.flow)}},
				map[string]string{"EUR": tc.available},
				nil,
			)

			report, err := svc.Run(context.Background())
			require.NoError(t, err)
			require.Empty(t, report.Rebalanced)
			requireDecimal(t, tc.available, ledger.pool("EUR").Available)
		})
	}
}

func TestRebalance_FailureIsIsolatedPerCurrency(t *testing.T) {
	svc, ledger := newRebalanceFixture(
		[]models.CurrencyFlow{
			{CurrencyCode: "EUR", Flow: dec("10000")},
			{CurrencyCode: "GBP", Flow: dec("10000")},
			{CurrencyCode: "NGN", Flow: dec("10000")},
		},
		map[string]string{"EUR": "0", "GBP": "0"},
		nil,
	)
	ledger.rebalanceErr["EUR"] = errors.New("pool locked too long")

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, report.Failed, "EUR")
	requireDecimal(t, "13000", report.Rebalanced["GBP"])
	require.NotContains(t, report.Rebalanced, "NGN")
	requireDecimal(t, "0", ledger.pool("EUR").Available)
	requireDecimal(t, "13000", ledger.pool("GBP").Available)
}

func TestRebalance_SkipsWhenSweepLockHeld(t *testing.T) {
	locker := &fakeLocker{acquired: false}
	svc, ledger := newRebalanceFixture(
		[]models.CurrencyFlow{{CurrencyCode: "EUR", Flow: dec("10000")}},
		map[string]string{"EUR": "1500"},
		locker,
	)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Equal(t, []string{rebalanceLockKey}, locker.keys)
	requireDecimal(t, "1500", ledger.pool("EUR").Available)
}

func TestRebalance_RunsUnderSweepLock(t *testing.T) {
	locker := &fakeLocker{acquired: true}
	svc, ledger := newRebalanceFixture(
		[]models.CurrencyFlow{{CurrencyCode: "EUR", Flow: dec("10000")}},
		map[string]string{"EUR": "1500"},
		locker,
	)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
	requireDecimal(t, "13000", ledger.pool("EUR").Available)
}

func TestRebalance_FlowQueryErrorIsReturned(t *testing.T) {
	svc, _ := newRebalanceFixture(nil, map[string]string{}, nil)
	svc.transactions.(*fakeTransactionStore).flowErr = errors.New("query canceled")

	_, err := svc.Run(context.Background())
	require.Error(t, err)
}
