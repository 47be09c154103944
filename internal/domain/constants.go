package domain

// TransactionStatus is the processing state of a cross-border transfer.
type TransactionStatus string

// SettlementStatus is the terminal settlement outcome. The zero value means unset.
type SettlementStatus string

// EntryKind classifies an append-only ledger entry.
type EntryKind string

const (
	TxStatusInitiated           TransactionStatus = "INITIATED"
	TxStatusFundsLocked         TransactionStatus = "FUNDS_LOCKED"
	TxStatusProcessing          TransactionStatus = "PROCESSING"
	TxStatusCompleted           TransactionStatus = "COMPLETED"
	TxStatusFailed              TransactionStatus = "FAILED"
	TxStatusExpired             TransactionStatus = "EXPIRED"
	TxStatusRequireIntervention TransactionStatus = "REQUIRE_INTERVENTION"
	TxStatusSettled             TransactionStatus = "SETTLED"
	TxStatusRetry               TransactionStatus = "RETRY"

	SettlementUnset               SettlementStatus = ""
	SettlementRequireIntervention SettlementStatus = "REQUIRE_INTERVENTION"
	SettlementSettled             SettlementStatus = "SETTLED"
	SettlementStopped             SettlementStatus = "SETTLEMENT_STOPPED"

	EntryLock         EntryKind = "lock"
	EntryMarginLock   EntryKind = "margin_lock"
	EntryUnlock       EntryKind = "unlock"
	EntryMarginUnlock EntryKind = "margin_unlock"
	EntryDebit        EntryKind = "debit"
	EntryFee          EntryKind = "fee"
	EntryRebalance    EntryKind = "rebalance"
)

// Ledger account labels written on journal entries.
const (
	SystemAccount     = "system"
	MasterPoolAccount = "master_pool"

	// InternalTransferPrefix namespaces internal transfer ids.
	InternalTransferPrefix = "system"

	// RejectedAccountSuffix marks sender/receiver accounts that are refused outright.
	RejectedAccountSuffix = "111"

	DefaultCurrencyPrecision = 2
)

// PoolAccount returns the journal account name of a currency pool.
func PoolAccount(currency string) string {
	return currency + "_pool"
}

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsSet reports whether a settlement outcome has been recorded.
func (s SettlementStatus) IsSet() bool {
	return s != SettlementUnset
}
