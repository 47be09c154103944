package service

import (
	"context"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/cache"
	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/shopspring/decimal"
)

const supportedCurrenciesKey = "supported"

// CurrencyStore reads currency configuration.
type CurrencyStore interface {
	ListEnabledCurrencies(ctx context.Context) ([]models.Currency, error)
}

// CurrencyService serves the enabled currencies. Margin rates from
// configuration take precedence over the stored ones.
type CurrencyService struct {
	store       CurrencyStore
	cache       *cache.Cache
	ttl         time.Duration
	marginRates map[string]decimal.Decimal
}

func NewCurrencyService(store CurrencyStore, c *cache.Cache, ttl time.Duration, marginRates map[string]decimal.Decimal) *CurrencyService {
	return &CurrencyService{store: store, cache: c, ttl: ttl, marginRates: marginRates}
}

// ListSupported returns enabled currencies keyed by code.
func (s *CurrencyService) ListSupported(ctx context.Context) (map[string]models.Currency, error) {
	list, err := cache.GetOrLoad(ctx, s.cache, supportedCurrenciesKey, s.ttl, s.store.ListEnabledCurrencies)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.Currency, len(list))
	for _, c := range list {
		if c.Precision < 0 {
			c.Precision = domain.DefaultCurrencyPrecision
		}
		if rate, ok := s.marginRates[c.Code]; ok {
			r := rate
			c.MarginRate = &r
		}
		out[c.Code] = c
	}
	return out, nil
}

// Invalidate drops the cached currency list.
func (s *CurrencyService) Invalidate(ctx context.Context) {
	s.cache.Delete(ctx, supportedCurrenciesKey)
}
