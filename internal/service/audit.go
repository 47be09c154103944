package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/ayo6706/crossborder-liquidity/internal/repository"
	"github.com/google/uuid"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single immutable audit record inside qtx.
func (s *AuditService) Write(ctx context.Context, qtx *repository.Queries, entityType string, entityID uuid.UUID, action, prevState, nextState string, metadata map[string]any) error {
	if err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		PrevState:  prevState,
		NextState:  nextState,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// RecordFailedTransfer keeps a trace of a transfer rejected before a
// transaction row was written.
func (s *AuditService) RecordFailedTransfer(ctx context.Context, event *models.FailedTransferEvent) error {
	if err := s.store.Queries().InsertFailedTransferEvent(ctx, event); err != nil {
		return fmt.Errorf("record failed transfer: %w", err)
	}
	return nil
}
