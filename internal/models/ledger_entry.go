package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind names the operation that produced a ledger entry.
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal"
	KindDonation   EntryKind = "donation"
)

// PrincipalSign returns +1 for deposits, -1 for withdrawals and 0 for
// donations, which never touch principal.
func (k EntryKind) PrincipalSign() int {
	switch k {
	case KindDeposit:
		return 1
	case KindWithdrawal:
		return -1
	default:
		return 0
	}
}

// Valid reports whether k is one of the known kinds.
func (k EntryKind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal || k == KindDonation
}

// LedgerEntry is a single committed journal record
type LedgerEntry struct {
	ID             string          // unique identifier
	IntentID       string          // intent this entry settles
	Kind           EntryKind       // deposit, withdrawal or donation
	Donor          string          // donor identity, or the beneficiary for donations
	Amount         decimal.Decimal // base units, always positive
	PrincipalDelta decimal.Decimal // signed change applied to the donor's principal
	CreatedAt      time.Time
}

// NewLedgerEntry builds the entry that settles intent. The principal delta is
// derived from the intent kind.
func NewLedgerEntry(id string, intent Intent, at time.Time) LedgerEntry {
	delta := decimal.Zero
	switch intent.Kind.PrincipalSign() {
	case 1:
		delta = intent.Amount
	case -1:
		delta = intent.Amount.Neg()
	}
	return LedgerEntry{
		ID:             id,
		IntentID:       intent.ID,
		Kind:           intent.Kind,
		Donor:          intent.Donor,
		Amount:         intent.Amount,
		PrincipalDelta: delta,
		CreatedAt:      at,
	}
}
