package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
)

const entityTransaction = "transaction"

var transactionTransitions = map[domain.TransactionStatus]map[domain.TransactionStatus]struct{}{
	domain.TxStatusInitiated: {
		domain.TxStatusFundsLocked: {},
		domain.TxStatusFailed:      {},
		domain.TxStatusExpired:     {},
	},
	domain.TxStatusFundsLocked: {
		domain.TxStatusProcessing: {},
		domain.TxStatusCompleted:  {},
		domain.TxStatusFailed:     {},
		domain.TxStatusExpired:    {},
	},
	domain.TxStatusProcessing: {
		domain.TxStatusCompleted: {},
		domain.TxStatusFailed:    {},
	},
	domain.TxStatusCompleted:           {},
	domain.TxStatusFailed:              {},
	domain.TxStatusExpired:             {},
	domain.TxStatusRequireIntervention: {},
	domain.TxStatusSettled:             {},
	domain.TxStatusRetry:               {},
}

func canTransition(current, next domain.TransactionStatus) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func transitionTransactionState(ctx context.Context, qtx *repository.Queries, audit *AuditService, arg repository.UpdateTransactionStatusParams, action string) (*models.Transaction, error) {
	if !canTransition(arg.From, arg.To) {
		return nil, domain.Wrap(domain.ErrUnknown, fmt.Errorf("invalid transaction state transition: %s -> %s", arg.From, arg.To))
	}

	tx, err := qtx.UpdateTransactionStatus(ctx, arg)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	if arg.LockedID != nil {
		metadata["locked_id"] = *arg.LockedID
	}
	if arg.FailureReason != "" {
		metadata["failure_reason"] = arg.FailureReason
	}
	if err := audit.Write(ctx, qtx, entityTransaction, tx.ID, action, string(arg.From), string(arg.To), metadata); err != nil {
		return nil, err
	}
	return tx, nil
}

func settleTransactionState(ctx context.Context, qtx *repository.Queries, audit *AuditService, arg repository.MarkSettlementParams) (*models.Transaction, error) {
	if arg.Status != "" && arg.Status != arg.ExpectedStatus && !canTransition(arg.ExpectedStatus, arg.Status) {
		return nil, domain.Wrap(domain.ErrUnknown, fmt.Errorf("invalid settlement transition: %s -> %s", arg.ExpectedStatus, arg.Status))
	}

	tx, err := qtx.MarkSettlement(ctx, arg)
	if err != nil {
		return nil, err
	}

	next := arg.ExpectedStatus
	if arg.Status != "" {
		next = arg.Status
	}
	metadata := map[string]any{
		"settlement_status": string(arg.SettlementStatus),
		"message":           arg.Message,
	}
	if arg.UnlockedID != nil {
		metadata["unlocked_id"] = *arg.UnlockedID
	}
	if err := audit.Write(ctx, qtx, entityTransaction, tx.ID, "settlement", string(arg.ExpectedStatus), string(next), metadata); err != nil {
		return nil, err
	}
	return tx, nil
}
