package service

import (
	"strings"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
)

// InternalTransferID derives the idempotency key of a transfer request.
func InternalTransferID(reference, fromCurrency, toCurrency string) string {
	return strings.Join([]string{domain.InternalTransferPrefix, reference, fromCurrency, toCurrency}, "|")
}

// CurrencyPair formats the exchange rate key of a conversion.
func CurrencyPair(from, to string) string {
	return from + "/" + to
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
