package repository

import (
	"context"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, transfer_id, internal_transfer_id, sender_account, receiver_account,
	from_amount, from_currency, to_amount, to_currency, fx_rate, effective_rate_date,
	margin, margin_rate, margin_currency, status, settlement_status, locked_id, unlocked_id,
	settlement_window_seconds, scheduled_settlement_time, actual_settlement_time,
	settlement_attempts, settlement_message, failure_reason, description, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		t                models.Transaction
		status           string
		settlementStatus *string
		windowSeconds    int32
	)
	err := row.Scan(
		&t.ID, &t.TransferID, &t.InternalTransferID, &t.SenderAccount, &t.ReceiverAccount,
		&t.FromAmount, &t.FromCurrency, &t.ToAmount, &t.ToCurrency, &t.FXRate, &t.EffectiveRateDate,
		&t.Margin, &t.MarginRate, &t.MarginCurrency, &status, &settlementStatus, &t.LockedID, &t.UnlockedID,
		&windowSeconds, &t.ScheduledSettlementTime, &t.ActualSettlementTime,
		&t.SettlementAttempts, &t.SettlementMessage, &t.FailureReason, &t.Description, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TransactionStatus(status)
	if settlementStatus != nil {
		t.SettlementStatus = domain.SettlementStatus(*settlementStatus)
	}
	t.SettlementWindow = time.Duration(windowSeconds) * time.Second
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func nullableSettlement(s domain.SettlementStatus) *string {
	if !s.IsSet() {
		return nil
	}
	v := string(s)
	return &v
}

// InsertTransaction writes t and fills its timestamps.
func (q *Queries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, transfer_id, internal_transfer_id, sender_account, receiver_account,
			from_amount, from_currency, to_amount, to_currency, fx_rate, effective_rate_date,
			margin, margin_rate, margin_currency, status, settlement_status,
			settlement_window_seconds, scheduled_settlement_time, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
		RETURNING created_at, updated_at`

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := q.db.QueryRow(ctx, query,
		t.ID, t.TransferID, t.InternalTransferID, t.SenderAccount, t.ReceiverAccount,
		t.FromAmount, t.FromCurrency, t.ToAmount, t.ToCurrency, t.FXRate, t.EffectiveRateDate,
		t.Margin, t.MarginRate, t.MarginCurrency, string(t.Status), nullableSettlement(t.SettlementStatus),
		int32(t.SettlementWindow/time.Second), t.ScheduledSettlementTime, t.Description, createdAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return mapError("insert transaction", err)
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get transaction", err)
	}
	return t, nil
}

func (q *Queries) GetTransactionByInternalID(ctx context.Context, internalTransferID string) (*models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE internal_transfer_id = $1`, internalTransferID))
	if err != nil {
		return nil, mapError("get transaction by internal id", err)
	}
	return t, nil
}

type UpdateTransactionStatusParams struct {
	ID            uuid.UUID
	From          domain.TransactionStatus
	To            domain.TransactionStatus
	LockedID      *int64
	FailureReason string
}

// UpdateTransactionStatus moves a transaction from arg.From to arg.To. It
// returns ErrNotFound when the row is no longer in arg.From.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (*models.Transaction, error) {
	const query = `
		UPDATE transactions
		SET status = $3,
			locked_id = COALESCE($4, locked_id),
			failure_reason = CASE WHEN $5 = '' THEN failure_reason ELSE $5 END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + transactionColumns

	t, err := scanTransaction(q.db.QueryRow(ctx, query, arg.ID, string(arg.From), string(arg.To), arg.LockedID, arg.FailureReason))
	if err != nil {
		return nil, mapError("update transaction status", err)
	}
	return t, nil
}

type MarkSettlementParams struct {
	ID               uuid.UUID
	ExpectedStatus   domain.TransactionStatus
	Status           domain.TransactionStatus // empty keeps the current status
	SettlementStatus domain.SettlementStatus
	Message          string
	UnlockedID       *int64
	SettledAt        *time.Time
}

// MarkSettlement records a settlement outcome. Only rows still in
// arg.ExpectedStatus with no settlement outcome are updated.
func (q *Queries) MarkSettlement(ctx context.Context, arg MarkSettlementParams) (*models.Transaction, error) {
	const query = `
		UPDATE transactions
		SET status = COALESCE(NULLIF($3, ''), status),
			settlement_status = $4,
			settlement_message = $5,
			unlocked_id = COALESCE($6, unlocked_id),
			actual_settlement_time = COALESCE($7, actual_settlement_time),
			claimed_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = $2 AND settlement_status IS NULL
		RETURNING ` + transactionColumns

	t, err := scanTransaction(q.db.QueryRow(ctx, query,
		arg.ID, string(arg.ExpectedStatus), string(arg.Status), nullableSettlement(arg.SettlementStatus),
		arg.Message, arg.UnlockedID, arg.SettledAt,
	))
	if err != nil {
		return nil, mapError("mark settlement", err)
	}
	return t, nil
}

// ClaimDueTransactions leases up to limit unsettled transactions in a
// settleable status whose settlement time has passed. Rows locked or leased
// by another worker are skipped.
func (q *Queries) ClaimDueTransactions(ctx context.Context, limit int32, lease time.Duration) ([]models.Transaction, error) {
	const query = `
		UPDATE transactions
		SET claimed_until = NOW() + ($2::bigint * INTERVAL '1 millisecond')
		WHERE id IN (
			SELECT id FROM transactions
			WHERE settlement_status IS NULL
			  AND status = ANY($3::text[])
			  AND scheduled_settlement_time <= NOW()
			  AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY scheduled_settlement_time ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + transactionColumns

	rows, err := q.db.Query(ctx, query, limit, lease.Milliseconds(), domain.SettleableStatuses())
	if err != nil {
		return nil, mapError("claim due transactions", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, mapError("claim due transactions", err)
	}
	return txs, nil
}

// RecordSettlementFailure bumps the retry counter and releases the lease so
// the next sweep retries the row.
func (q *Queries) RecordSettlementFailure(ctx context.Context, id uuid.UUID, message string) (int32, error) {
	const query = `
		UPDATE transactions
		SET settlement_attempts = settlement_attempts + 1,
			settlement_message = $2,
			claimed_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND settlement_status IS NULL
		RETURNING settlement_attempts`

	var attempts int32
	if err := q.db.QueryRow(ctx, query, id, message).Scan(&attempts); err != nil {
		return 0, mapError("record settlement failure", err)
	}
	return attempts, nil
}

// ReleaseClaim clears the lease on a row whose state moved on mid-sweep.
func (q *Queries) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE transactions SET claimed_until = NULL WHERE id = $1`, id)
	return mapError("release claim", err)
}

// ListCompletedFlow sums to_amount plus margin of completed transactions
// created since the given time, per destination currency.
func (q *Queries) ListCompletedFlow(ctx context.Context, since time.Time) ([]models.CurrencyFlow, error) {
	const query = `
		SELECT to_currency, COALESCE(SUM(to_amount), 0) + COALESCE(SUM(margin), 0)
		FROM transactions
		WHERE status = 'COMPLETED' AND created_at >= $1
		GROUP BY to_currency
		ORDER BY to_currency`

	rows, err := q.db.Query(ctx, query, since)
	if err != nil {
		return nil, mapError("list completed flow", err)
	}
	defer rows.Close()

	var out []models.CurrencyFlow
	for rows.Next() {
		var (
			f    models.CurrencyFlow
			flow decimal.Decimal
		)
		if err := rows.Scan(&f.CurrencyCode, &flow); err != nil {
			return nil, mapError("scan completed flow", err)
		}
		f.Flow = flow
		out = append(out, f)
	}
	return out, mapError("list completed flow", rows.Err())
}
