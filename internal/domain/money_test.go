package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestQuoteConversion(t *testing.T) {
	q := QuoteConversion(decimal.RequireFromString("1000.00"), decimal.RequireFromString("1.10"), decimal.RequireFromString("0.01"), 2)

	assert.Equal(t, "1100.00", q.ExchangeAmount.StringFixed(2))
	assert.Equal(t, "11.00", q.Margin.StringFixed(2))
	assert.Equal(t, "1089.00", q.ToAmount.StringFixed(2))
}

func TestQuoteConversion_RoundsHalfUp(t *testing.T) {
	// 10.005 * 1 -> 10.01, margin 10.01 * 0.05 = 0.5005 -> 0.50
	q := QuoteConversion(decimal.RequireFromString("10.005"), decimal.NewFromInt(1), decimal.RequireFromString("0.05"), 2)

	assert.True(t, q.ExchangeAmount.Equal(decimal.RequireFromString("10.01")))
	assert.True(t, q.Margin.Equal(decimal.RequireFromString("0.50")))
	assert.True(t, q.ToAmount.Equal(decimal.RequireFromString("9.51")))
}

func TestQuoteConversion_ZeroPrecision(t *testing.T) {
	q := QuoteConversion(decimal.NewFromInt(100), decimal.RequireFromString("149.55"), decimal.RequireFromString("0.01"), 0)

	assert.True(t, q.ExchangeAmount.Equal(decimal.NewFromInt(14955)))
	assert.True(t, q.Margin.Equal(decimal.NewFromInt(150)))
	assert.True(t, q.ToAmount.Equal(decimal.NewFromInt(14805)))
}
