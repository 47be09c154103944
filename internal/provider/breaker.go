package provider

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around a provider.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// BreakerProvider stops calling a failing rail until OpenTimeout passes.
// Calls rejected by an open breaker fail with ErrUnknown so callers treat
// the transfer as still in flight.
type BreakerProvider struct {
	next    TransferProvider
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerProvider(next TransferProvider, cfg BreakerConfig) *BreakerProvider {
	if cfg.Name == "" {
		cfg.Name = "transfer-provider"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("provider circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			observability.SetBreakerState(name, breakerStateValue(to))
		},
	}
	observability.SetBreakerState(cfg.Name, 0)
	return &BreakerProvider{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (p *BreakerProvider) Transfer(ctx context.Context, tx *models.Transaction) (domain.TransactionStatus, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.next.Transfer(ctx, tx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", domain.Wrap(domain.ErrUnknown, err)
		}
		return "", err
	}
	return out.(domain.TransactionStatus), nil
}

// State reports the breaker state.
func (p *BreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
