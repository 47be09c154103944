package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/events"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type SettlementConfig struct {
	PollSize    int32
	Lease       time.Duration
	MaxAttempts int32
}

// SettlementService finalizes transactions whose settlement time has passed:
// it releases or debits the lock and records a terminal settlement outcome.
type SettlementService struct {
	transactions TransactionStore
	ledger       LiquidityLedger
	publisher    events.Publisher
	cfg          SettlementConfig
	now          func() time.Time
}

func NewSettlementService(transactions TransactionStore, ledger LiquidityLedger, publisher events.Publisher, cfg SettlementConfig) *SettlementService {
	if cfg.PollSize <= 0 {
		cfg.PollSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SettlementService{
		transactions: transactions,
		ledger:       ledger,
		publisher:    publisher,
		cfg:          cfg,
		now:          time.Now,
	}
}

// RunOnce claims one batch of due transactions and settles each. A failure on
// one transaction does not stop the batch.
func (s *SettlementService) RunOnce(ctx context.Context) (processed int, err error) {
	ctx, span := observability.StartSpan(ctx, "settlement.run_once", attribute.Int("poll_size", int(s.cfg.PollSize)))
	defer func() { observability.EndSpan(span, err) }()

	due, err := s.transactions.ClaimDue(ctx, s.cfg.PollSize, s.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim due transactions: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		s.settle(ctx, &due[i])
		processed++
	}
	return processed, nil
}

func (s *SettlementService) settle(ctx context.Context, tx *models.Transaction) {
	logger := zap.L().With(
		zap.String("internal_transfer_id", tx.InternalTransferID),
		zap.String("status", string(tx.Status)),
	)
	logger.Info("settling transaction")

	var err error
	switch tx.Status {
	case domain.TxStatusFundsLocked:
		logger.Warn("transaction never completed, releasing funds")
		err = s.releaseFunds(ctx, tx, domain.TxStatusExpired, "Transaction expired before completion")
	case domain.TxStatusFailed:
		err = s.releaseFunds(ctx, tx, domain.TxStatusFailed, "Transaction failed")
	case domain.TxStatusCompleted:
		err = s.settleCompleted(ctx, tx)
	case domain.TxStatusInitiated:
		logger.Warn("transaction stuck before funds lock")
		err = s.mark(ctx, tx, domain.TxStatusExpired, domain.SettlementRequireIntervention, "Transaction requires intervention", nil, nil)
	default:
		// Not claimable; the lease expires on its own.
		logger.Error("transaction not in a settleable status, skipping")
		return
	}

	if err != nil {
		s.handleFailure(ctx, tx, err)
		return
	}
	observability.IncrementSettlement(string(tx.Status), "ok")
}

func (s *SettlementService) releaseFunds(ctx context.Context, tx *models.Transaction, next domain.TransactionStatus, message string) error {
	if tx.LockedID == nil {
		return domain.Wrap(domain.ErrNotFound, fmt.Errorf("transaction %s has no lock", tx.InternalTransferID))
	}

	unlockID, err := s.ledger.UnlockBalance(ctx, *tx.LockedID)
	if errors.Is(err, domain.ErrDuplicate) {
		rel, ok, relErr := s.priorRelease(ctx, tx, domain.EntryUnlock)
		if relErr != nil {
			return relErr
		}
		if !ok {
			return s.mark(ctx, tx, next, domain.SettlementRequireIntervention, "Lock already released", nil, nil)
		}
		unlockID, err = rel.ID, nil
	}
	if err != nil {
		return err
	}
	return s.mark(ctx, tx, next, domain.SettlementStopped, message, &unlockID, nil)
}

func (s *SettlementService) settleCompleted(ctx context.Context, tx *models.Transaction) error {
	if tx.LockedID == nil {
		return domain.Wrap(domain.ErrNotFound, fmt.Errorf("transaction %s has no lock", tx.InternalTransferID))
	}

	lock, err := s.ledger.GetLockEntry(ctx, *tx.LockedID)
	if err != nil {
		return err
	}
	if !lock.Amount.Equal(tx.ToAmount) || lock.CurrencyCode != tx.ToCurrency {
		zap.L().Error("lock entry does not match transaction",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.String("lock_amount", lock.Amount.String()),
			zap.String("lock_currency", lock.CurrencyCode),
			zap.String("to_amount", tx.ToAmount.String()),
			zap.String("to_currency", tx.ToCurrency),
		)
		return s.mark(ctx, tx, tx.Status, domain.SettlementRequireIntervention, "Locked amount does not match expected amount", nil, nil)
	}

	settledAt := s.now().UTC()
	if _, err := s.ledger.DebitLockedBalance(ctx, *tx.LockedID); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			return err
		}
		rel, ok, relErr := s.priorRelease(ctx, tx, domain.EntryDebit)
		if relErr != nil {
			return relErr
		}
		if !ok {
			return s.mark(ctx, tx, tx.Status, domain.SettlementRequireIntervention, "Lock already released", nil, nil)
		}
		settledAt = rel.CreatedAt.UTC()
	}
	return s.mark(ctx, tx, tx.Status, domain.SettlementSettled, "", nil, &settledAt)
}

// priorRelease looks up the entry that already released the transaction's
// lock. ok is true when that entry is of kind and belongs to tx, meaning an
// earlier sweep moved the funds but failed to record the outcome.
func (s *SettlementService) priorRelease(ctx context.Context, tx *models.Transaction, kind domain.EntryKind) (*models.LedgerEntry, bool, error) {
	rel, err := s.ledger.GetRelease(ctx, *tx.LockedID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, domain.Wrap(domain.ErrUnknown, fmt.Errorf("lock %d reported released but no release entry found", *tx.LockedID))
		}
		return nil, false, err
	}
	if rel.Kind != kind || rel.TransactionID != tx.ID {
		zap.L().Warn("lock released by a different movement",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.Int64("release_entry_id", rel.ID),
			zap.String("release_kind", string(rel.Kind)),
		)
		return rel, false, nil
	}
	zap.L().Info("lock already released by an earlier sweep, recording outcome",
		zap.String("internal_transfer_id", tx.InternalTransferID),
		zap.Int64("release_entry_id", rel.ID),
	)
	return rel, true, nil
}

func (s *SettlementService) mark(ctx context.Context, tx *models.Transaction, next domain.TransactionStatus, outcome domain.SettlementStatus, message string, unlockedID *int64, settledAt *time.Time) error {
	arg := repository.MarkSettlementParams{
		ID:               tx.ID,
		ExpectedStatus:   tx.Status,
		SettlementStatus: outcome,
		Message:          message,
		UnlockedID:       unlockedID,
		SettledAt:        settledAt,
	}
	if next != tx.Status {
		arg.Status = next
	}

	updated, err := s.transactions.MarkSettlement(ctx, arg)
	if err != nil {
		return fmt.Errorf("mark settlement %s: %w", outcome, err)
	}
	s.publish(ctx, updated, tx.Status)
	return nil
}

func (s *SettlementService) handleFailure(ctx context.Context, tx *models.Transaction, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		zap.L().Error("lock not found, transaction requires intervention",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.Error(err),
		)
		markErr := s.mark(ctx, tx, tx.Status, domain.SettlementRequireIntervention, "Lock entry not found", nil, nil)
		switch {
		case markErr == nil:
			observability.IncrementSettlement(string(tx.Status), "intervention")
			return
		case errors.Is(markErr, domain.ErrNotFound):
			// The row moved on; the next sweep sees its new state.
			s.release(ctx, tx)
			return
		default:
			err = markErr
		}
	}

	observability.IncrementSettlement(string(tx.Status), "error")
	attempts, recordErr := s.transactions.RecordSettlementFailure(ctx, tx.ID, err.Error())
	if recordErr != nil {
		zap.L().Error("record settlement failure failed",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.NamedError("cause", err),
			zap.Error(recordErr),
		)
		return
	}
	zap.L().Error("settlement failed",
		zap.String("internal_transfer_id", tx.InternalTransferID),
		zap.Int32("attempts", attempts),
		zap.Error(err),
	)
	if attempts > s.cfg.MaxAttempts {
		observability.IncrementSettlementRetryExhausted(tx.ToCurrency)
		zap.L().Warn("settlement retries exhausted",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.Int32("attempts", attempts),
			zap.Int32("max_attempts", s.cfg.MaxAttempts),
		)
	}
}

func (s *SettlementService) release(ctx context.Context, tx *models.Transaction) {
	if err := s.transactions.ReleaseClaim(ctx, tx.ID); err != nil {
		zap.L().Warn("release settlement claim failed", zap.String("internal_transfer_id", tx.InternalTransferID), zap.Error(err))
	}
}

func (s *SettlementService) publish(ctx context.Context, tx *models.Transaction, previous domain.TransactionStatus) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, events.TransferEvent{
		Type:               events.TypeTransferStatusChanged,
		TransactionID:      tx.ID,
		InternalTransferID: tx.InternalTransferID,
		PreviousStatus:     previous,
		Status:             tx.Status,
		SettlementStatus:   tx.SettlementStatus,
		ToCurrency:         tx.ToCurrency,
		ToAmount:           tx.ToAmount,
		OccurredAt:         s.now().UTC(),
	})
	if err != nil {
		zap.L().Warn("publish settlement event failed", zap.String("internal_transfer_id", tx.InternalTransferID), zap.Error(err))
	}
}
