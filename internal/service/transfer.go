package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/events"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/ayo6706/crossborder-liquidity/internal/provider"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// TransferService turns transfer requests into funds-locked transactions and
// dispatches them to the execution rail.
type TransferService struct {
	transactions TransactionStore
	currencies   CurrencyCatalog
	rates        RateQuoter
	ledger       LiquidityLedger
	provider     provider.TransferProvider
	publisher    events.Publisher
	now          func() time.Time
}

func NewTransferService(
	transactions TransactionStore,
	currencies CurrencyCatalog,
	rates RateQuoter,
	ledger LiquidityLedger,
	rail provider.TransferProvider,
	publisher events.Publisher,
) *TransferService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &TransferService{
		transactions: transactions,
		currencies:   currencies,
		rates:        rates,
		ledger:       ledger,
		provider:     rail,
		publisher:    publisher,
		now:          time.Now,
	}
}

// Transfer executes req once. A repeated request with the same reference and
// currency pair returns the stored transaction without side effects.
func (s *TransferService) Transfer(ctx context.Context, req models.TransferRequest) (tx *models.Transaction, err error) {
	req.FromCurrency = normalizeCurrency(req.FromCurrency)
	req.ToCurrency = normalizeCurrency(req.ToCurrency)
	internalID := InternalTransferID(req.Reference, req.FromCurrency, req.ToCurrency)

	ctx, span := observability.StartSpan(ctx, "transfer.execute",
		attribute.String("internal_transfer_id", internalID),
		attribute.String("pair", CurrencyPair(req.FromCurrency, req.ToCurrency)),
	)
	defer func() {
		observability.EndSpan(span, err)
		observability.IncrementTransfer(transferOutcome(err))
	}()

	if strings.TrimSpace(req.Reference) == "" || req.FromAmount.Sign() <= 0 {
		return nil, domain.Wrap(domain.ErrUnknown, fmt.Errorf("transfer %q requires a reference and a positive amount", internalID))
	}

	existing, err := s.transactions.GetByInternalID(ctx, internalID)
	switch {
	case err == nil:
		zap.L().Info("transfer already exists", zap.String("internal_transfer_id", internalID), zap.String("status", string(existing.Status)))
		return markInFlight(existing), nil
	case !errors.Is(err, domain.ErrNotFound):
		zap.L().Error("lookup transfer failed", zap.String("internal_transfer_id", internalID), zap.Error(err))
		return nil, domain.Wrap(domain.ErrUnknown, err)
	}

	return s.process(ctx, req, internalID)
}

func (s *TransferService) process(ctx context.Context, req models.TransferRequest, internalID string) (*models.Transaction, error) {
	currencies, err := s.currencies.ListSupported(ctx)
	if err != nil {
		zap.L().Error("load supported currencies failed", zap.String("internal_transfer_id", internalID), zap.Error(err))
		s.recordRejected(ctx, req, internalID, err, "Could not retrieve currency.")
		return nil, err
	}

	fromCurrency, toCurrency, err := validateTransfer(req, currencies)
	if err != nil {
		zap.L().Warn("transfer rejected", zap.String("internal_transfer_id", internalID), zap.Error(err))
		s.recordRejected(ctx, req, internalID, err, "Validation failed.")
		return nil, err
	}

	rate, err := s.rates.GetLatestRate(ctx, req.FromCurrency, req.ToCurrency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Wrap(domain.ErrNoAvailableRate, err)
		}
		return nil, err
	}

	quote := domain.QuoteConversion(req.FromAmount, rate.Rate, *toCurrency.MarginRate, toCurrency.Precision)
	now := s.now().UTC()
	tx := &models.Transaction{
		ID:                      uuid.New(),
		TransferID:              req.Reference,
		InternalTransferID:      internalID,
		SenderAccount:           req.SenderAccount,
		ReceiverAccount:         req.ReceiverAccount,
		FromAmount:              req.FromAmount,
		FromCurrency:            req.FromCurrency,
		ToAmount:                quote.ToAmount,
		ToCurrency:              req.ToCurrency,
		FXRate:                  rate.Rate,
		EffectiveRateDate:       rate.EffectiveDate,
		Margin:                  quote.Margin,
		MarginRate:              *toCurrency.MarginRate,
		MarginCurrency:          req.ToCurrency,
		Status:                  domain.TxStatusInitiated,
		SettlementWindow:        fromCurrency.SettlementWindow,
		ScheduledSettlementTime: now.Add(fromCurrency.SettlementWindow),
		Description:             req.Description,
		CreatedAt:               now,
	}

	// Once the row exists the request runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			if existing, lookupErr := s.transactions.GetByInternalID(ctx, internalID); lookupErr == nil {
				return markInFlight(existing), nil
			}
		}
		zap.L().Error("persist transfer failed", zap.String("internal_transfer_id", internalID), zap.Error(err))
		return nil, err
	}

	locked, err := s.lockFunds(ctx, tx)
	if err != nil {
		return nil, err
	}

	return s.dispatch(ctx, locked)
}

func (s *TransferService) lockFunds(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	lockID, err := s.ledger.LockBalance(ctx, models.LiquidityMovement{
		TransactionID: tx.ID,
		Currency:      tx.ToCurrency,
		Amount:        tx.ToAmount,
		Margin:        tx.Margin,
		EventTime:     tx.CreatedAt,
		Description:   fmt.Sprintf("Lock funds for transaction %s", tx.InternalTransferID),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			failed, markErr := s.transactions.MarkSettlement(ctx, repository.MarkSettlementParams{
				ID:               tx.ID,
				ExpectedStatus:   domain.TxStatusInitiated,
				Status:           domain.TxStatusFailed,
				SettlementStatus: domain.SettlementStopped,
				Message:          "Insufficient funds",
			})
			if markErr != nil {
				zap.L().Error("mark transfer failed after insufficient funds", zap.String("internal_transfer_id", tx.InternalTransferID), zap.Error(markErr))
			} else {
				s.publish(ctx, failed, domain.TxStatusInitiated)
			}
			return nil, err
		}
		zap.L().Error("lock funds failed, transfer left initiated",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.Error(err),
		)
		return nil, err
	}

	locked, err := s.transactions.UpdateStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:       tx.ID,
		From:     domain.TxStatusInitiated,
		To:       domain.TxStatusFundsLocked,
		LockedID: &lockID,
	})
	if err != nil {
		zap.L().Error("record funds lock failed",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.Int64("lock_id", lockID),
			zap.Error(err),
		)
		return nil, err
	}
	s.publish(ctx, locked, domain.TxStatusInitiated)
	return locked, nil
}

func (s *TransferService) dispatch(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	status, err := s.provider.Transfer(ctx, tx)
	var reason string
	switch {
	case err != nil:
		reason = fmt.Sprintf("Failed to initiate transfer. %s", domain.AsFailure(err).Code)
		status = domain.TxStatusProcessing
		zap.L().Warn("provider dispatch failed, transfer treated as in flight",
			zap.String("internal_transfer_id", tx.InternalTransferID),
			zap.Error(err),
		)
	case status != domain.TxStatusFailed && status != domain.TxStatusProcessing && status != domain.TxStatusCompleted:
		reason = fmt.Sprintf("Unexpected provider status %q", status)
		status = domain.TxStatusProcessing
	}

	updated, err := s.transactions.UpdateStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:            tx.ID,
		From:          domain.TxStatusFundsLocked,
		To:            status,
		FailureReason: reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The settlement sweep moved the row first.
			if current, lookupErr := s.transactions.GetByInternalID(ctx, tx.InternalTransferID); lookupErr == nil {
				return current, nil
			}
		}
		zap.L().Error("record provider outcome failed", zap.String("internal_transfer_id", tx.InternalTransferID), zap.Error(err))
		return nil, err
	}

	s.publish(ctx, updated, domain.TxStatusFundsLocked)
	zap.L().Info("transfer initiated",
		zap.String("internal_transfer_id", updated.InternalTransferID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func validateTransfer(req models.TransferRequest, currencies map[string]models.Currency) (models.Currency, models.Currency, error) {
	if strings.HasSuffix(req.SenderAccount, domain.RejectedAccountSuffix) {
		return models.Currency{}, models.Currency{}, domain.ErrInvalidSenderAccount
	}
	if strings.HasSuffix(req.ReceiverAccount, domain.RejectedAccountSuffix) {
		return models.Currency{}, models.Currency{}, domain.ErrInvalidReceiverAccount
	}
	from, ok := currencies[req.FromCurrency]
	if !ok {
		return models.Currency{}, models.Currency{}, domain.ErrSendingCurrencyNotSupported
	}
	to, ok := currencies[req.ToCurrency]
	if !ok {
		return models.Currency{}, models.Currency{}, domain.ErrReceivingCurrencyNotSupported
	}
	if to.MarginRate == nil {
		return models.Currency{}, models.Currency{}, domain.ErrUnsupportedCurrencyPair
	}
	return from, to, nil
}

func (s *TransferService) recordRejected(ctx context.Context, req models.TransferRequest, internalID string, cause error, prefix string) {
	f := domain.AsFailure(cause)
	event := &models.FailedTransferEvent{
		InternalTransferID: internalID,
		TransferID:         req.Reference,
		SenderAccount:      req.SenderAccount,
		ReceiverAccount:    req.ReceiverAccount,
		FromCurrency:       req.FromCurrency,
		ToCurrency:         req.ToCurrency,
		FromAmount:         req.FromAmount,
		Status:             domain.TxStatusRetry,
		FailureCode:        string(f.Code),
		FailureMessage:     fmt.Sprintf("%s %s", prefix, f.Message),
	}
	if err := s.transactions.RecordFailedTransfer(ctx, event); err != nil {
		zap.L().Error("record rejected transfer failed", zap.String("internal_transfer_id", internalID), zap.Error(err))
	}
}

func (s *TransferService) publish(ctx context.Context, tx *models.Transaction, previous domain.TransactionStatus) {
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
		zap.L().Warn("publish transfer event failed", zap.String("internal_transfer_id", tx.InternalTransferID), zap.Error(err))
	}
}

// markInFlight reports a retried transfer that has not reached the rail yet
// as PROCESSING. The stored row is left untouched.
func markInFlight(tx *models.Transaction) *models.Transaction {
	if !tx.Status.InFlight() {
		return tx
	}
	out := *tx
	out.Status = domain.TxStatusProcessing
	return &out
}

func transferOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.AsFailure(err).Code)
}
