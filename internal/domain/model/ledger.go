package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerDirection string

const (
	LedgerCredit LedgerDirection = "credit"
	LedgerDebit  LedgerDirection = "debit"
)

// LedgerEntry is one atomic wallet mutation together with the transaction row recording it.
// Transaction may be an already persisted PENDING row (it is then completed) or a new row.
type LedgerEntry struct {
	UserID      uuid.UUID
	Direction   LedgerDirection
	Amount      decimal.Decimal
	Currency    string
	Transaction *Transaction
}

// LedgerResult reports the outcome of ApplyEntry. Applied is false when the entry's
// transaction key had already been completed, in which case no balance changed.
type LedgerResult struct {
	Wallet      *Wallet
	Transaction *Transaction
	Applied     bool
}
