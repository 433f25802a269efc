package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Grade is a professor's assessment of one enrollment.
type Grade struct {
	ID             int64           `db:"id" json:"id"`
	EnrollmentID   int64           `db:"enrollment_id" json:"enrollment_id"`
	ProfessorID    int64           `db:"professor_id" json:"professor_id"`
	Value          decimal.Decimal `db:"value" json:"value"`
	AssessmentType string          `db:"assessment_type" json:"assessment_type"`
	Weight         int             `db:"weight" json:"weight"`
	Comments       *string         `db:"comments" json:"comments,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// StudentGrades groups one enrollment's grades with subject context for the
// student-facing transcript view.
type StudentGrades struct {
	EnrollmentID int64   `json:"enrollment_id"`
	SubjectCode  string  `json:"subject_code"`
	SubjectName  string  `json:"subject_name"`
	GroupName    string  `json:"group_name"`
	Grades       []Grade `json:"grades"`
}
