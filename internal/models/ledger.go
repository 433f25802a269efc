package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a credit ledger entry.
type EntryKind string

// Entry kinds. Credits and refunds increase the balance, debits decrease it.
const (
	EntryKindCredit EntryKind = "credit"
	EntryKindDebit  EntryKind = "debit"
	EntryKindRefund EntryKind = "refund"
)

// Signed returns the amount with the sign the kind applies to a balance.
func (k EntryKind) Signed(amount decimal.Decimal) decimal.Decimal {
	if k == EntryKindDebit {
		return amount.Neg()
	}
	return amount
}

// CreditEntry is one immutable, append-only record of a balance-affecting
// event. BalanceAfter snapshots the account balance as of this entry; the
// snapshot on a student's most recent entry always equals the student's
// current available credits.
type CreditEntry struct {
	ID           int64           `db:"id" json:"id"`
	StudentID    int64           `db:"student_id" json:"student_id"`
	Kind         EntryKind       `db:"kind" json:"kind"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balance_after"`
	Description  string          `db:"description" json:"description"`
	EnrollmentID *int64          `db:"enrollment_id" json:"enrollment_id,omitempty"`
	IssuedBy     *int64          `db:"issued_by" json:"issued_by,omitempty"`
	Reference    string          `db:"reference" json:"reference"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// LedgerFilter pages through a student's entries, newest first.
type LedgerFilter struct {
	Kind     EntryKind
	Page     int
	PageSize int
}
