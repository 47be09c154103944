package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRank_Order(t *testing.T) {
	ordered := []TransactionStatus{
		TxStatusInitiated,
		TxStatusFundsLocked,
		TxStatusProcessing,
		TxStatusCompleted,
		TxStatusFailed,
		TxStatusExpired,
		TxStatusRequireIntervention,
		TxStatusSettled,
		TxStatusRetry,
	}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i-1].Before(ordered[i]), "%s should rank before %s", ordered[i-1], ordered[i])
	}
	assert.Equal(t, -1, StatusRank("BOGUS"))
}

func TestTransactionStatus_InFlight(t *testing.T) {
	assert.True(t, TxStatusInitiated.InFlight())
	assert.True(t, TxStatusFundsLocked.InFlight())
	assert.False(t, TxStatusProcessing.InFlight())
	assert.False(t, TxStatusCompleted.InFlight())
	assert.False(t, TransactionStatus("BOGUS").InFlight())
}

func TestTransactionStatus_Settleable(t *testing.T) {
	for _, s := range []TransactionStatus{TxStatusInitiated, TxStatusFundsLocked, TxStatusCompleted, TxStatusFailed} {
		assert.True(t, s.Settleable(), s)
	}
	for _, s := range []TransactionStatus{TxStatusProcessing, TxStatusExpired, TxStatusRequireIntervention, TxStatusSettled, TxStatusRetry, "BOGUS"} {
		assert.False(t, s.Settleable(), s)
	}
	assert.ElementsMatch(t, []string{"INITIATED", "FUNDS_LOCKED", "COMPLETED", "FAILED"}, SettleableStatuses())
}
