package models

import (
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferRequest is a client instruction to move FromAmount from one currency to another.
type TransferRequest struct {
	Reference       string          `json:"reference"`
	SenderAccount   string          `json:"sender_account"`
	ReceiverAccount string          `json:"receiver_account"`
	FromCurrency    string          `json:"from_currency"`
	ToCurrency      string          `json:"to_currency"`
	FromAmount      decimal.Decimal `json:"from_amount"`
	Description     string          `json:"description,omitempty"`
}

type Transaction struct {
	ID                      uuid.UUID                `json:"id"`
	TransferID              string                   `json:"transfer_id"`
	InternalTransferID      string                   `json:"internal_transfer_id"`
	SenderAccount           string                   `json:"sender_account"`
	ReceiverAccount         string                   `json:"receiver_account"`
	FromAmount              decimal.Decimal          `json:"from_amount"`
	FromCurrency            string                   `json:"from_currency"`
	ToAmount                decimal.Decimal          `json:"to_amount"`
	ToCurrency              string                   `json:"to_currency"`
	FXRate                  decimal.Decimal          `json:"fx_rate"`
	EffectiveRateDate       time.Time                `json:"effective_rate_date"`
	Margin                  decimal.Decimal          `json:"margin"`
	MarginRate              decimal.Decimal          `json:"margin_rate"`
	MarginCurrency          string                   `json:"margin_currency"`
	Status                  domain.TransactionStatus `json:"status"`
	SettlementStatus        domain.SettlementStatus  `json:"settlement_status,omitempty"`
	LockedID                *int64                   `json:"locked_id,omitempty"`
	UnlockedID              *int64                   `json:"unlocked_id,omitempty"`
	SettlementWindow        time.Duration            `json:"-"`
	ScheduledSettlementTime time.Time                `json:"scheduled_settlement_time"`
	ActualSettlementTime    *time.Time               `json:"actual_settlement_time,omitempty"`
	SettlementAttempts      int32                    `json:"settlement_attempts"`
	SettlementMessage       string                   `json:"settlement_message,omitempty"`
	FailureReason           string                   `json:"failure_reason,omitempty"`
	Description             string                   `json:"description,omitempty"`
	CreatedAt               time.Time                `json:"created_at"`
	UpdatedAt               time.Time                `json:"updated_at"`
}

// LedgerEntry is one immutable journal row. Lock entries carry the principal
// in Amount and the margin reserved alongside it in Margin.
type LedgerEntry struct {
	ID               int64            `json:"id"`
	TransactionID    uuid.UUID        `json:"transaction_id"`
	CurrencyCode     string           `json:"currency_code"`
	Kind             domain.EntryKind `json:"kind"`
	Amount           decimal.Decimal  `json:"amount"`
	Margin           decimal.Decimal  `json:"margin"`
	FromAccount      string           `json:"from_account"`
	ToAccount        string           `json:"to_account"`
	ReferenceEntryID *int64           `json:"reference_entry_id,omitempty"`
	Description      string           `json:"description"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Total is the amount reserved by a lock entry.
func (e LedgerEntry) Total() decimal.Decimal {
	return e.Amount.Add(e.Margin)
}

type PoolBalance struct {
	CurrencyCode string          `json:"currency_code"`
	Available    decimal.Decimal `json:"available_balance"`
	Locked       decimal.Decimal `json:"locked_balance"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LiquidityMovement describes one lock request against a currency pool.
type LiquidityMovement struct {
	TransactionID uuid.UUID
	Currency      string
	Amount        decimal.Decimal
	Margin        decimal.Decimal
	EventTime     time.Time
	Description   string
}

type ExchangeRate struct {
	ID            int64           `json:"id"`
	CurrencyPair  string          `json:"currency_pair"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate time.Time       `json:"effective_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Currency struct {
	Code             string           `json:"code"`
	SettlementWindow time.Duration    `json:"settlement_window"`
	Enabled          bool             `json:"enabled"`
	Precision        int32            `json:"precision"`
	MarginRate       *decimal.Decimal `json:"margin_rate,omitempty"`
}

// FailedTransferEvent records a transfer attempt rejected before a
// transaction row could be written.
type FailedTransferEvent struct {
	ID                 int64                    `json:"id"`
	InternalTransferID string                   `json:"internal_transfer_id"`
	TransferID         string                   `json:"transfer_id"`
	SenderAccount      string                   `json:"sender_account"`
	ReceiverAccount    string                   `json:"receiver_account"`
	FromCurrency       string                   `json:"from_currency"`
	ToCurrency         string                   `json:"to_currency"`
	FromAmount         decimal.Decimal          `json:"from_amount"`
	Status             domain.TransactionStatus `json:"status"`
	FailureCode        string                   `json:"failure_code"`
	FailureMessage     string                   `json:"failure_message"`
	CreatedAt          time.Time                `json:"created_at"`
}

// CurrencyFlow is the completed outbound volume of one currency over a window.
type CurrencyFlow struct {
	CurrencyCode string
	Flow         decimal.Decimal
}

// JournalTotals are the per-kind sums of one currency's ledger entries.
type JournalTotals struct {
	CurrencyCode string
	Locked       decimal.Decimal // lock + margin_lock
	Released     decimal.Decimal // unlock + margin_unlock
	Debited      decimal.Decimal
	Fees         decimal.Decimal
	Rebalanced   decimal.Decimal
}

// Net is the value the journal says the pool holds.
func (t JournalTotals) Net() decimal.Decimal {
	return t.Rebalanced.Sub(t.Debited).Sub(t.Fees)
}

// OutstandingLocks is the value the journal says is still reserved.
func (t JournalTotals) OutstandingLocks() decimal.Decimal {
	return t.Locked.Sub(t.Released).Sub(t.Debited)
}
