package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// RateBook stores and quotes exchange rates.
type RateBook interface {
	AddRate(ctx context.Context, from, to string, rate decimal.Decimal, effective time.Time) (*models.ExchangeRate, error)
	GetLatestRate(ctx context.Context, from, to string) (*models.ExchangeRate, error)
}

type ExchangeRateHandler struct {
	rates RateBook
}

func NewExchangeRateHandler(rates RateBook) *ExchangeRateHandler {
	return &ExchangeRateHandler{rates: rates}
}

type addRateRequest struct {
	FromCurrency  string          `json:"from_currency"`
	ToCurrency    string          `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// AddRate handles POST /v1/fx-rates.
func (h *ExchangeRateHandler) AddRate(w http.ResponseWriter, r *http.Request) {
	var req addRateRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "Invalid request body")
		return
	}
	from := strings.ToUpper(strings.TrimSpace(req.FromCurrency))
	to := strings.ToUpper(strings.TrimSpace(req.ToCurrency))
	if !isCurrencyCode(from) || !isCurrencyCode(to) {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "currencies must be 3-letter ISO codes")
		return
	}
	if req.Rate.Sign() <= 0 {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "rate must be positive")
		return
	}
	if req.EffectiveDate.IsZero() {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "effective_date is required")
		return
	}

	rate, err := h.rates.AddRate(r.Context(), from, to, req.Rate, req.EffectiveDate)
	if err != nil {
		RespondFailure(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rate)
}

// GetLatestRate handles GET /v1/fx-rates/{from}/{to}.
func (h *ExchangeRateHandler) GetLatestRate(w http.ResponseWriter, r *http.Request) {
	from := strings.ToUpper(chi.URLParam(r, "from"))
	to := strings.ToUpper(chi.URLParam(r, "to"))
	if !isCurrencyCode(from) || !isCurrencyCode(to) {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "currencies must be 3-letter ISO codes")
		return
	}

	rate, err := h.rates.GetLatestRate(r.Context(), from, to)
	if err != nil {
		RespondFailure(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rate)
}
