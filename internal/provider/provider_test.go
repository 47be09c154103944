package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyProvider_PrefixRules(t *testing.T) {
	p := NewDummyProvider()
	cases := []struct {
		sender string
		want   domain.TransactionStatus
		fails  bool
	}{
		{sender: "111000", want: domain.TxStatusFailed},
		{sender: "222000", want: domain.TxStatusProcessing},
		{sender: "333000", fails: true},
		{sender: "444000", want: domain.TxStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.sender, func(t *testing.T) {
			got, err := p.Transfer(context.Background(), &models.Transaction{SenderAccount: tc.sender})
			if tc.fails {
				assert.ErrorIs(t, err, domain.ErrUnknown)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDummyProvider_HonoursCancellation(t *testing.T) {
	p := &DummyProvider{Latency: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Transfer(ctx, &models.Transaction{SenderAccount: "444"})
	assert.ErrorIs(t, err, domain.ErrUnknown)
}

type flakyProvider struct {
	calls int
	err   error
}

func (f *flakyProvider) Transfer(context.Context, *models.Transaction) (domain.TransactionStatus, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return domain.TxStatusCompleted, nil
}

func TestBreakerProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyProvider{err: errors.New("rail timeout")}
	p := NewBreakerProvider(next, BreakerConfig{Name: "test-rail", ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	tx := &models.Transaction{SenderAccount: "444"}

	for i := 0; i < 2; i++ {
		_, err := p.Transfer(context.Background(), tx)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Transfer(context.Background(), tx)
	assert.ErrorIs(t, err, domain.ErrUnknown)
	assert.Equal(t, 2, next.calls, "open breaker must not reach the rail")
}

func TestBreakerProvider_PassesThroughStatus(t *testing.T) {
	p := NewBreakerProvider(&flakyProvider{}, BreakerConfig{OpenTimeout: time.Minute})

	status, err := p.Transfer(context.Background(), &models.Transaction{})

	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, status)
	assert.Equal(t, gobreaker.StateClosed, p.State())
}
