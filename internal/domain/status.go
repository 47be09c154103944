package domain

// statusRank orders transaction statuses. Comparisons must go through this
// table, never through declaration order.
var statusRank = map[TransactionStatus]int{
	TxStatusInitiated:           0,
	TxStatusFundsLocked:         1,
	TxStatusProcessing:          2,
	TxStatusCompleted:           3,
	TxStatusFailed:              4,
	TxStatusExpired:             5,
	TxStatusRequireIntervention: 6,
	TxStatusSettled:             7,
	TxStatusRetry:               8,
}

// StatusRank returns the precedence of s, or -1 for an unknown status.
func StatusRank(s TransactionStatus) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Before reports whether s ranks strictly below other.
func (s TransactionStatus) Before(other TransactionStatus) bool {
	return StatusRank(s) < StatusRank(other)
}

// InFlight reports whether a retried request for a transaction in status s
// should be answered as still processing.
func (s TransactionStatus) InFlight() bool {
	return s.Valid() && s.Before(TxStatusProcessing)
}

// settleable lists the statuses the settlement sweep acts on.
var settleable = []TransactionStatus{
	TxStatusInitiated,
	TxStatusFundsLocked,
	TxStatusCompleted,
	TxStatusFailed,
}

// Settleable reports whether the settlement sweep acts on status s.
func (s TransactionStatus) Settleable() bool {
	for _, st := range settleable {
		if s == st {
			return true
		}
	}
	return false
}

// SettleableStatuses returns the statuses the settlement sweep claims.
func SettleableStatuses() []string {
	out := make([]string, len(settleable))
	for i, st := range settleable {
		out[i] = string(st)
	}
	return out
}
