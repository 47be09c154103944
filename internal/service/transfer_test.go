package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type transferFixture struct {
	svc       *TransferService
	store     *fakeTransactionStore
	ledger    *fakeLedger
	catalog   *fakeCatalog
	quoter    *fakeQuoter
	provider  *fakeProvider
	publisher *recordingPublisher
}

func newTransferFixture(eurAvailable string) *transferFixture {
	f := &transferFixture{
		store:  newFakeTransactionStore(),
		ledger: newFakeLedger(map[string]string{"EUR": eurAvailable, "USD": "0"}),
		catalog: &fakeCatalog{currencies: map[string]models.Currency{
			"USD": testCurrency("USD", 2, "0.01"),
			"EUR": testCurrency("EUR", 2, "0.01"),
			"JPY": testCurrency("JPY", 0, ""),
		}},
		quoter:    &fakeQuoter{rates: map[string]string{"USD/EUR": "1.10"}},
		provider:  &fakeProvider{status: domain.TxStatusCompleted},
		publisher: &recordingPublisher{},
	}
	f.svc = NewTransferService(f.store, f.catalog, f.quoter, f.ledger, f.provider, f.publisher)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func transferRequest(reference string) models.TransferRequest {
	return models.TransferRequest{
		Reference:       reference,
		SenderAccount:   "acc-sender",
		ReceiverAccount: "acc-receiver",
		FromCurrency:    "usd",
		ToCurrency:      "EUR",
		FromAmount:      dec("1000"),
	}
}

func TestTransfer_LocksFundsAndDispatches(t *testing.T) {
	f := newTransferFixture("10000")

	tx, err := f.svc.Transfer(context.Background(), transferRequest("ref-1"))
	require.NoError(t, err)

	require.Equal(t, domain.TxStatusCompleted, tx.Status)
	require.Equal(t, "system|ref-1|USD|EUR", tx.InternalTransferID)
	requireDecimal(t, "1089.00", tx.ToAmount)
	requireDecimal(t, "11.00", tx.Margin)
	requireDecimal(t, "1.10", tx.FXRate)
	require.NotNil(t, tx.LockedID)
	require.Equal(t, testNow.Add(time.Hour), tx.ScheduledSettlementTime)

	pool := f.ledger.pool("EUR")
	requireDecimal(t, "8900", pool.Available)
	requireDecimal(t, "1100", pool.Locked)

	require.Len(t, f.publisher.events, 2)
	require.Equal(t, domain.TxStatusFundsLocked, f.publisher.events[0].Status)
	require.Equal(t, domain.TxStatusCompleted, f.publisher.events[1].Status)
	require.Equal(t, domain.TxStatusFundsLocked, f.publisher.events[1].PreviousStatus)
}

func TestTransfer_RetryReturnsStoredTransaction(t *testing.T) {
	f := newTransferFixture("10000")
	ctx := context.Background()

	first, err := f.svc.Transfer(ctx, transferRequest("ref-retry"))
	require.NoError(t, err)
	second, err := f.svc.Transfer(ctx, transferRequest("ref-retry"))
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, f.ledger.lockCalls)
	require.Equal(t, 1, f.provider.calls)
	require.Equal(t, 1, f.store.count())
	requireDecimal(t, "8900", f.ledger.pool("EUR").Available)
}

func TestTransfer_RetryOfInFlightTransferReportsProcessing(t *testing.T) {
	f := newTransferFixture("10000")
	lockID := int64(7)
	stored := &models.Transaction{
		ID:                 uuid.New(),
		InternalTransferID: InternalTransferID("ref-inflight", "USD", "EUR"),
		Status:             domain.TxStatusFundsLocked,
		LockedID:           &lockID,
	}
	f.store.seed(stored)

	tx, err := f.svc.Transfer(context.Background(), transferRequest("ref-inflight"))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusProcessing, tx.Status)
	require.Equal(t, domain.TxStatusFundsLocked, f.store.get(stored.ID).Status)
	require.Zero(t, f.provider.calls)
}

func TestTransfer_ConcurrentDuplicateReturnsWinner(t *testing.T) {
	f := newTransferFixture("10000")
	winner := &models.Transaction{
		ID:                 uuid.New(),
		InternalTransferID: InternalTransferID("ref-race", "USD", "EUR"),
		Status:             domain.TxStatusCompleted,
	}
	f.store.raceOnCreate = winner

	tx, err := f.svc.Transfer(context.Background(), transferRequest("ref-race"))
	require.NoError(t, err)
	require.Equal(t, winner.ID, tx.ID)
	require.Zero(t, f.ledger.lockCalls)
}

func TestTransfer_NoRateLeavesBalancesUntouched(t *testing.T) {
	f := newTransferFixture("10000")
	f.quoter.rates = map[string]string{}

	_, err := f.svc.Transfer(context.Background(), transferRequest("ref-norate"))
	require.ErrorIs(t, err, domain.ErrNoAvailableRate)
	require.True(t, domain.Retryable(err))
	require.Zero(t, f.store.count())
	requireDecimal(t, "10000", f.ledger.pool("EUR").Available)
	requireDecimal(t, "0", f.ledger.pool("EUR").Locked)
}

func TestTransfer_InsufficientFundsFailsTransaction(t *testing.T) {
	f := newTransferFixture("500")

	_, err := f.svc.Transfer(context.Background(), transferRequest("ref-poor"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	stored, err := f.store.GetByInternalID(context.Background(), InternalTransferID("ref-poor", "USD", "EUR"))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, stored.Status)
	require.Equal(t, domain.SettlementStopped, stored.SettlementStatus)
	require.Nil(t, stored.LockedID)
	requireDecimal(t, "500", f.ledger.pool("EUR").Available)
	require.Zero(t, f.provider.calls)
}

func TestTransfer_LockErrorLeavesTransactionInitiated(t *testing.T) {
	f := newTransferFixture("10000")
	f.ledger.lockErr = domain.Wrap(domain.ErrUnknown, errors.New("connection reset"))

	_, err := f.svc.Transfer(context.Background(), transferRequest("ref-lockerr"))
	require.ErrorIs(t, err, domain.ErrUnknown)

	stored, err := f.store.GetByInternalID(context.Background(), InternalTransferID("ref-lockerr", "USD", "EUR"))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusInitiated, stored.Status)
	require.False(t, stored.SettlementStatus.IsSet())
}

func TestTransfer_DispatchErrorMarksProcessing(t *testing.T) {
	f := newTransferFixture("10000")
	f.provider.status = ""
	f.provider.err = domain.Wrap(domain.ErrUnknown, errors.New("rail timeout"))

	tx, err := f.svc.Transfer(context.Background(), transferRequest("ref-rail"))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusProcessing, tx.Status)
	require.Contains(t, tx.FailureReason, "Failed to initiate transfer")
	requireDecimal(t, "1100", f.ledger.pool("EUR").Locked)
}

func TestTransfer_ProviderFailurePersisted(t *testing.T) {
	f := newTransferFixture("10000")
	f.provider.status = domain.TxStatusFailed

	tx, err := f.svc.Transfer(context.Background(), transferRequest("ref-failed"))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Equal(t, domain.TxStatusFailed, f.store.get(tx.ID).Status)
}

func TestTransfer_ValidationFailuresAreRecorded(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.TransferRequest)
		want   error
	}{
		{name: "rejected_sender", mutate: func(r *models.TransferRequest) { r.SenderAccount = "acc111" }, want: domain.ErrInvalidSenderAccount},
		{name: "rejected_receiver", mutate: func(r *models.TransferRequest) { r.ReceiverAccount = "acc111" }, want: domain.ErrInvalidReceiverAccount},
		{name: "unsupported_source", mutate: func(r *models.TransferRequest) { r.FromCurrency = "GBP" }, want: domain.ErrSendingCurrencyNotSupported},
		{name: "unsupported_target", mutate: func(r *models.TransferRequest) { r.ToCurrency = "GBP" }, want: domain.ErrReceivingCurrencyNotSupported},
		{name: "no_margin_rate", mutate: func(r *models.TransferRequest) { r.ToCurrency = "JPY" }, want: domain.ErrUnsupportedCurrencyPair},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newTransferFixture("10000")
			req := transferRequest("ref-" + tc.name)
			tc.mutate(&req)

			_, err := f.svc.Transfer(context.Background(), req)
			require.ErrorIs(t, err, tc.want)
			require.Zero(t, f.store.count())
			require.Len(t, f.store.failed, 1)
			require.Equal(t, domain.TxStatusRetry, f.store.failed[0].Status)
			require.Equal(t, string(domain.AsFailure(tc.want).Code), f.store.failed[0].FailureCode)
			require.Contains(t, f.store.failed[0].FailureMessage, "Validation failed.")
		})
	}
}

func TestTransfer_CurrencyLoadFailureIsRecorded(t *testing.T) {
	f := newTransferFixture("10000")
	f.catalog.err = domain.Wrap(domain.ErrUnknown, errors.New("db down"))

	_, err := f.svc.Transfer(context.Background(), transferRequest("ref-catalog"))
	require.ErrorIs(t, err, domain.ErrUnknown)
	require.Len(t, f.store.failed, 1)
	require.Equal(t, string(domain.CodeUnknown), f.store.failed[0].FailureCode)
	require.Zero(t, f.store.count())
}

func TestTransfer_RejectsNonPositiveAmount(t *testing.T) {
	f := newTransferFixture("10000")
	req := transferRequest("ref-zero")
	req.FromAmount = dec("0")

	_, err := f.svc.Transfer(context.Background(), req)
	require.Error(t, err)
	require.Zero(t, f.store.count())
}
