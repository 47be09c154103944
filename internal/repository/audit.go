package repository

import (
	"context"
	"encoding/json"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/google/uuid"
)

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	PrevState  string
	NextState  string
	Metadata   map[string]any
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	var metadata []byte
	if len(arg.Metadata) > 0 {
		raw, err := json.Marshal(arg.Metadata)
		if err != nil {
			return mapError("marshal audit metadata", err)
		}
		metadata = raw
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, prev_state, next_state, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`,
		arg.EntityType, arg.EntityID, arg.Action, arg.PrevState, arg.NextState, metadata,
	)
	return mapError("insert audit log", err)
}

func (q *Queries) InsertFailedTransferEvent(ctx context.Context, e *models.FailedTransferEvent) error {
	const query = `
		INSERT INTO failed_transaction_events (
			internal_transfer_id, transfer_id, sender_account, receiver_account,
			from_currency, to_currency, from_amount, status, failure_code, failure_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := q.db.QueryRow(ctx, query,
		e.InternalTransferID, e.TransferID, e.SenderAccount, e.ReceiverAccount,
		e.FromCurrency, e.ToCurrency, e.FromAmount, string(e.Status), e.FailureCode, e.FailureMessage,
	).Scan(&e.ID, &e.CreatedAt)
	return mapError("insert failed transfer event", err)
}
