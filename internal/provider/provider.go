package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
)

// TransferProvider is the external execution rail that moves funds at a
// payment network. Implementations answer with FAILED, PROCESSING or
// COMPLETED, or return a failure when the outcome is unknown.
type TransferProvider interface {
	Transfer(ctx context.Context, tx *models.Transaction) (domain.TransactionStatus, error)
}

// DummyProvider simulates a rail. The sender account prefix selects the outcome:
//
//	111... -> FAILED
//	222... -> PROCESSING
//	333... -> unknown_error failure
//	other  -> COMPLETED
type DummyProvider struct {
	// Latency is slept before answering.
	Latency time.Duration
}

func NewDummyProvider() *DummyProvider {
	return &DummyProvider{}
}

func (p *DummyProvider) Transfer(ctx context.Context, tx *models.Transaction) (domain.TransactionStatus, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return "", domain.Wrap(domain.ErrUnknown, fmt.Errorf("provider call canceled: %w", ctx.Err()))
		}
	}

	switch {
	case strings.HasPrefix(tx.SenderAccount, "111"):
		return domain.TxStatusFailed, nil
	case strings.HasPrefix(tx.SenderAccount, "222"):
		return domain.TxStatusProcessing, nil
	case strings.HasPrefix(tx.SenderAccount, "333"):
		return "", domain.Wrap(domain.ErrUnknown, fmt.Errorf("provider rejected transfer %s", tx.InternalTransferID))
	default:
		return domain.TxStatusCompleted, nil
	}
}
