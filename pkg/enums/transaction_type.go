package enums

import "fmt"

// TransactionType classifies balance-affecting ledger rows.
type TransactionType string

const (
	TransactionTypeDeposit         TransactionType = "deposit"
	TransactionTypeWithdraw        TransactionType = "withdraw"
	TransactionTypePayment         TransactionType = "payment"
	TransactionTypeReceivedPayment TransactionType = "received_payment"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdraw,
	TransactionTypePayment,
	TransactionTypeReceivedPayment,
}

// IsValid reports whether the value matches the canonical transaction enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
