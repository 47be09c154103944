package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/cache"
	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateStore reads and appends exchange rates.
type RateStore interface {
	GetLatestRate(ctx context.Context, pair string, asOf time.Time) (*models.ExchangeRate, error)
	GetNewestRate(ctx context.Context, pair string) (*models.ExchangeRate, error)
	InsertRate(ctx context.Context, pair string, rate decimal.Decimal, effective time.Time) (*models.ExchangeRate, error)
}

// ExchangeRateService stores rates and quotes the rate in force for a pair.
// Effective timestamps of a pair only move forward.
type ExchangeRateService struct {
	store      RateStore
	currencies CurrencyCatalog
	cache      *cache.Cache
	ttl        time.Duration
	now        func() time.Time
}

func NewExchangeRateService(store RateStore, currencies CurrencyCatalog, c *cache.Cache, ttl time.Duration) *ExchangeRateService {
	return &ExchangeRateService{
		store:      store,
		currencies: currencies,
		cache:      c,
		ttl:        ttl,
		now:        time.Now,
	}
}

// GetLatestRate returns the most recent rate for from/to that is already
// effective, or ErrNotFound.
func (s *ExchangeRateService) GetLatestRate(ctx context.Context, from, to string) (*models.ExchangeRate, error) {
	pair := CurrencyPair(normalizeCurrency(from), normalizeCurrency(to))
	return cache.GetOrLoad(ctx, s.cache, pair, s.ttl, func(ctx context.Context) (*models.ExchangeRate, error) {
		return s.store.GetLatestRate(ctx, pair, s.now())
	})
}

// AddRate records rate for from/to effective at the given time. The time
// must be strictly after the newest stored rate of the pair.
func (s *ExchangeRateService) AddRate(ctx context.Context, from, to string, rate decimal.Decimal, effective time.Time) (*models.ExchangeRate, error) {
	from, to = normalizeCurrency(from), normalizeCurrency(to)
	pair := CurrencyPair(from, to)

	if rate.Sign() <= 0 {
		return nil, domain.Wrap(domain.ErrUnknown, fmt.Errorf("rate for %s must be positive, got %s", pair, rate))
	}

	supported, err := s.currencies.ListSupported(ctx)
	if err != nil {
		return nil, err
	}
	_, fromOK := supported[from]
	_, toOK := supported[to]
	if !fromOK || !toOK || from == to {
		return nil, domain.Wrap(domain.ErrUnsupportedCurrencyPair, fmt.Errorf("pair %s", pair))
	}

	newest, err := s.store.GetNewestRate(ctx, pair)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		zap.L().Debug("no rate stored for pair, safe to insert", zap.String("pair", pair))
	case err != nil:
		return nil, err
	case !effective.After(newest.EffectiveDate):
		return nil, domain.Wrap(domain.ErrOldFxRate,
			fmt.Errorf("%s effective %s is not after %s", pair, effective.Format(time.RFC3339Nano), newest.EffectiveDate.Format(time.RFC3339Nano)))
	}

	inserted, err := s.store.InsertRate(ctx, pair, rate, effective)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.Wrap(domain.ErrOldFxRate, err)
		}
		return nil, err
	}

	if !inserted.EffectiveDate.After(s.now()) {
		s.cache.Set(ctx, pair, inserted, s.ttl)
	} else {
		s.cache.Delete(ctx, pair)
	}

	zap.L().Info("exchange rate added",
		zap.String("pair", pair),
		zap.String("rate", inserted.Rate.String()),
		zap.Time("effective_date", inserted.EffectiveDate),
	)
	return inserted, nil
}
