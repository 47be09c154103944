package events

import (
	"context"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const TypeTransferStatusChanged = "transfer.status_changed"

// TransferEvent announces a transaction status change to downstream consumers.
type TransferEvent struct {
	Type               string                   `json:"type"`
	TransactionID      uuid.UUID                `json:"transaction_id"`
	InternalTransferID string                   `json:"internal_transfer_id"`
	PreviousStatus     domain.TransactionStatus `json:"previous_status,omitempty"`
	Status             domain.TransactionStatus `json:"status"`
	SettlementStatus   domain.SettlementStatus  `json:"settlement_status,omitempty"`
	ToCurrency         string                   `json:"to_currency"`
	ToAmount           decimal.Decimal          `json:"to_amount"`
	OccurredAt         time.Time                `json:"occurred_at"`
}

// Publisher delivers transfer events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event TransferEvent) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TransferEvent) error { return nil }
func (NopPublisher) Close() error { return nil }
