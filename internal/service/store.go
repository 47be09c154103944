package service

import (
	"context"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() *repository.Queries
	RunInTx(ctx context.Context, fn func(q *repository.Queries) error) error
}

// LiquidityLedger owns pool balances and the movement journal.
type LiquidityLedger interface {
	LockBalance(ctx context.Context, movement models.LiquidityMovement) (int64, error)
	UnlockBalance(ctx context.Context, lockID int64) (int64, error)
	DebitLockedBalance(ctx context.Context, lockID int64) (int64, error)
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	GetLockEntry(ctx context.Context, lockID int64) (*models.LedgerEntry, error)
	GetRelease(ctx context.Context, lockID int64) (*models.LedgerEntry, error)
	GetPool(ctx context.Context, currency string) (*models.PoolBalance, error)
	Rebalance(ctx context.Context, currency string, amount decimal.Decimal) (int64, error)
}

// TransactionStore persists transactions. Status changes carry the expected
// prior status and fail with ErrNotFound when another writer got there first.
type TransactionStore interface {
	GetByInternalID(ctx context.Context, internalTransferID string) (*models.Transaction, error)
	Create(ctx context.Context, tx *models.Transaction) error
	UpdateStatus(ctx context.Context, arg repository.UpdateTransactionStatusParams) (*models.Transaction, error)
	MarkSettlement(ctx context.Context, arg repository.MarkSettlementParams) (*models.Transaction, error)
	ClaimDue(ctx context.Context, limit int32, lease time.Duration) ([]models.Transaction, error)
	RecordSettlementFailure(ctx context.Context, id uuid.UUID, message string) (int32, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	ListCompletedFlow(ctx context.Context, since time.Time) ([]models.CurrencyFlow, error)
	RecordFailedTransfer(ctx context.Context, event *models.FailedTransferEvent) error
}

// RateQuoter resolves the rate in force for a currency pair.
type RateQuoter interface {
	GetLatestRate(ctx context.Context, from, to string) (*models.ExchangeRate, error)
}

// CurrencyCatalog lists the currencies transfers may use, keyed by code.
type CurrencyCatalog interface {
	ListSupported(ctx context.Context) (map[string]models.Currency, error)
}
