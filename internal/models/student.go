package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student represents a learner holding a spendable credit balance.
// AvailableCredits is a materialized projection of the student's credit
// ledger; it is mutated only by the ledger post operation, never assigned
// directly.
type Student struct {
	ID               int64           `db:"id" json:"id"`
	Code             string          `db:"code" json:"code"`
	FullName         string          `db:"full_name" json:"full_name"`
	Phone            string          `db:"phone" json:"phone,omitempty"`
	AvailableCredits decimal.Decimal `db:"available_credits" json:"available_credits"`
	Active           bool            `db:"active" json:"active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
