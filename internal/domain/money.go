package domain

import "github.com/shopspring/decimal"

// RoundHalfUp rounds d to precision decimal places, ties away from zero.
func RoundHalfUp(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Round(precision)
}

// Quote is the fee breakdown of a conversion.
type Quote struct {
	ExchangeAmount decimal.Decimal
	Margin         decimal.Decimal
	ToAmount       decimal.Decimal
}

// QuoteConversion applies rate and marginRate to fromAmount. Both the
// converted amount and the margin are rounded half-up to precision, and the
// margin is taken out of the converted amount.
func QuoteConversion(fromAmount, rate, marginRate decimal.Decimal, precision int32) Quote {
	exchange := RoundHalfUp(fromAmount.Mul(rate), precision)
	margin := RoundHalfUp(exchange.Mul(marginRate), precision)
	return Quote{
		ExchangeAmount: exchange,
		Margin:         margin,
		ToAmount:       exchange.Sub(margin),
	}
}

