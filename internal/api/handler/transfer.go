package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
)

// TransferExecutor runs a cross-border transfer.
type TransferExecutor interface {
	Transfer(ctx context.Context, req models.TransferRequest) (*models.Transaction, error)
}

type TransferHandler struct {
	svc TransferExecutor
}

func NewTransferHandler(svc TransferExecutor) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// CreateTransfer handles POST /v1/transfers.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation-error", "Invalid request body")
		return
	}

	req.Reference = strings.TrimSpace(req.Reference)
	req.FromCurrency = strings.ToUpper(strings.TrimSpace(req.FromCurrency))
	req.ToCurrency = strings.ToUpper(strings.TrimSpace(req.ToCurrency))
	switch {
	case req.Reference == "":
		RespondError(w, r, http.StatusBadRequest, "validation-error", "reference is required")
		return
	case strings.TrimSpace(req.SenderAccount) == "" || strings.TrimSpace(req.ReceiverAccount) == "":
		RespondError(w, r, http.StatusBadRequest, "validation-error", "sender_account and receiver_account are required")
		return
	case !isCurrencyCode(req.FromCurrency) || !isCurrencyCode(req.ToCurrency):
		RespondError(w, r, http.StatusBadRequest, "validation-error", "currencies must be 3-letter ISO codes")
		return
	case req.FromAmount.Sign() <= 0:
		RespondError(w, r, http.StatusBadRequest, "validation-error", "from_amount must be positive")
		return
	}

	tx, err := h.svc.Transfer(r.Context(), req)
	if err != nil {
		RespondFailure(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}
