package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/go-chi/chi/v5"
)

// PoolReader reads liquidity pool balances.
type PoolReader interface {
	GetPool(ctx context.Context, currency string) (*models.PoolBalance, error)
}

type PoolHandler struct {
	pools PoolReader
}

func NewPoolHandler(pools PoolReader) *PoolHandler {
	return &PoolHandler{pools: pools}
}

// GetPool handles GET /v1/pools/{currency}.
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(chi.URLParam(r, "currency"))
	if !isCurrencyCode(currency) {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "currency must be a 3-letter ISO code")
		return
	}

	pool, err := h.pools.GetPool(r.Context(), currency)
	if err != nil {
		RespondFailure(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, pool)
}
