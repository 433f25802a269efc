package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subject is a course offering with a fixed credit cost per enrollment.
type Subject struct {
	ID          int64           `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	CreditCost  decimal.Decimal `db:"credit_cost" json:"credit_cost"`
	Description *string         `db:"description" json:"description,omitempty"`
	ProfessorID *int64          `db:"professor_id" json:"professor_id,omitempty"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// SubjectFilter provides filters for listing subjects.
type SubjectFilter struct {
	Search      string
	ProfessorID int64
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
