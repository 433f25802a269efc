package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Group is one scheduled section of a subject with bounded capacity.
type Group struct {
	ID          int64     `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	SubjectID   int64     `db:"subject_id" json:"subject_id"`
	Semester    int       `db:"semester" json:"semester"`
	Year        int       `db:"year" json:"year"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GroupDetail enriches Group with the owning subject's billing attributes.
// It is the snapshot the eligibility checks run against.
type GroupDetail struct {
	Group
	SubjectCode   string          `db:"subject_code" json:"subject_code"`
	SubjectName   string          `db:"subject_name" json:"subject_name"`
	SubjectActive bool            `db:"subject_active" json:"subject_active"`
	CreditCost    decimal.Decimal `db:"credit_cost" json:"credit_cost"`
	ProfessorID   *int64          `db:"professor_id" json:"professor_id,omitempty"`
}

// GroupFilter provides filters for listing groups.
type GroupFilter struct {
	SubjectID int64
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
