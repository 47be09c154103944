package service

import (
	"context"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/google/uuid"
)

// PgTransactionStore is the Postgres TransactionStore. Every status change
// is written together with its audit record.
type PgTransactionStore struct {
	store QueryStore
	audit *AuditService
}

func NewTransactionStore(store QueryStore) *PgTransactionStore {
	return &PgTransactionStore{store: store, audit: NewAuditService(store)}
}

func (s *PgTransactionStore) GetByInternalID(ctx context.Context, internalTransferID string) (*models.Transaction, error) {
	return s.store.Queries().GetTransactionByInternalID(ctx, internalTransferID)
}

func (s *PgTransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if err := qtx.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return s.audit.Write(ctx, qtx, entityTransaction, tx.ID, "created", "", string(tx.Status), map[string]any{
			"internal_transfer_id": tx.InternalTransferID,
			"to_amount":            tx.ToAmount.String(),
			"to_currency":          tx.ToCurrency,
		})
	})
}

func (s *PgTransactionStore) UpdateStatus(ctx context.Context, arg repository.UpdateTransactionStatusParams) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		tx, err := transitionTransactionState(ctx, qtx, s.audit, arg, "status_changed")
		out = tx
		return err
	})
	return out, err
}

func (s *PgTransactionStore) MarkSettlement(ctx context.Context, arg repository.MarkSettlementParams) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		tx, err := settleTransactionState(ctx, qtx, s.audit, arg)
		out = tx
		return err
	})
	return out, err
}

func (s *PgTransactionStore) ClaimDue(ctx context.Context, limit int32, lease time.Duration) ([]models.Transaction, error) {
	return s.store.Queries().ClaimDueTransactions(ctx, limit, lease)
}

func (s *PgTransactionStore) RecordSettlementFailure(ctx context.Context, id uuid.UUID, message string) (int32, error) {
	return s.store.Queries().RecordSettlementFailure(ctx, id, message)
}

func (s *PgTransactionStore) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	return s.store.Queries().ReleaseClaim(ctx, id)
}

func (s *PgTransactionStore) ListCompletedFlow(ctx context.Context, since time.Time) ([]models.CurrencyFlow, error) {
	return s.store.Queries().ListCompletedFlow(ctx, since)
}

func (s *PgTransactionStore) RecordFailedTransfer(ctx context.Context, event *models.FailedTransferEvent) error {
	if event.Status == "" {
		event.Status = domain.TxStatusRetry
	}
	return s.audit.RecordFailedTransfer(ctx, event)
}
