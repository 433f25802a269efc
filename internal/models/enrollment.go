package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Withdrawn and completed are terminal.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusWithdrawn EnrollmentStatus = "withdrawn"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment captures one attempt of a student's membership in a group.
// CreditsCharged is frozen at creation time; later changes to the subject's
// credit cost never affect an existing enrollment or its refund.
type Enrollment struct {
	ID             int64            `db:"id" json:"id"`
	StudentID      int64            `db:"student_id" json:"student_id"`
	GroupID        int64            `db:"group_id" json:"group_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	CreditsCharged decimal.Decimal  `db:"credits_charged" json:"credits_charged"`
	EnrolledAt     time.Time        `db:"enrolled_at" json:"enrolled_at"`
	WithdrawnAt    *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with group and subject info.
type EnrollmentDetail struct {
	Enrollment
	GroupCode   string `db:"group_code" json:"group_code"`
	GroupName   string `db:"group_name" json:"group_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
}

// GroupRosterEntry is one active enrollment as seen by a professor.
type GroupRosterEntry struct {
	EnrollmentID int64     `db:"enrollment_id" json:"enrollment_id"`
	StudentID    int64     `db:"student_id" json:"student_id"`
	StudentCode  string    `db:"student_code" json:"student_code"`
	StudentName  string    `db:"student_name" json:"student_name"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
	GradeCount   int       `db:"grade_count" json:"grade_count"`
}
