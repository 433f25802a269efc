package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unicampus/credits-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Methods taking a
// *sqlx.Tx participate in the enroll/withdraw transaction and must only be
// called inside one.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, group_id, status, credits_charged, enrolled_at, withdrawn_at, created_at`

// ExistsActive reports whether the student already holds an active
// enrollment in the group.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, tx *sqlx.Tx, studentID, groupID int64) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND group_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := tx.GetContext(ctx, &exists, query, studentID, groupID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CountActive returns the group's current occupancy. Stable for the rest of
// the transaction because callers hold the group row lock while inserting.
func (r *EnrollmentRepository) CountActive(ctx context.Context, tx *sqlx.Tx, groupID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE group_id = $1 AND status = $2`
	var count int
	if err := tx.GetContext(ctx, &count, query, groupID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// Create inserts a new active enrollment row.
func (r *EnrollmentRepository) Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.CreatedAt = now
	const query = `INSERT INTO enrollments (student_id, group_id, status, credits_charged, enrolled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := tx.GetContext(ctx, &enrollment.ID, query,
		enrollment.StudentID, enrollment.GroupID, enrollment.Status,
		enrollment.CreditsCharged, enrollment.EnrolledAt, enrollment.CreatedAt); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindActiveForUpdate loads the enrollment with a row lock, verifying in the
// same statement that it is active and owned by the student. sql.ErrNoRows
// covers missing, foreign and already-withdrawn enrollments alike.
func (r *EnrollmentRepository) FindActiveForUpdate(ctx context.Context, tx *sqlx.Tx, id, studentID int64) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 AND student_id = $2 AND status = $3 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, id, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// MarkWithdrawn transitions an active enrollment to withdrawn.
func (r *EnrollmentRepository) MarkWithdrawn(ctx context.Context, tx *sqlx.Tx, id int64, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, withdrawn_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, at, models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("mark enrollment withdrawn: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark enrollment withdrawn: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteActiveByGroup transitions all of a group's active enrollments to
// completed, returning how many rows changed.
func (r *EnrollmentRepository) CompleteActiveByGroup(ctx context.Context, tx *sqlx.Tx, groupID int64) (int64, error) {
	const query = `UPDATE enrollments SET status = $2 WHERE group_id = $1 AND status = $3`
	res, err := tx.ExecContext(ctx, query, groupID, models.EnrollmentStatusCompleted, models.EnrollmentStatusActive)
	if err != nil {
		return 0, fmt.Errorf("complete group enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete group enrollments: %w", err)
	}
	return affected, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns the student's enrollments with group and subject
// context, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.group_id, e.status, e.credits_charged, e.enrolled_at, e.withdrawn_at, e.created_at,
        g.code AS group_code, g.name AS group_name, s.code AS subject_code, s.name AS subject_name
        FROM enrollments e
        JOIN groups g ON g.id = e.group_id
        JOIN subjects s ON s.id = g.subject_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListRoster returns the group's active enrollments as a professor-facing
// roster.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, groupID int64) ([]models.GroupRosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, st.id AS student_id, st.code AS student_code, st.full_name AS student_name,
        e.enrolled_at, COUNT(gr.id) AS grade_count
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        LEFT JOIN grades gr ON gr.enrollment_id = e.id
        WHERE e.group_id = $1 AND e.status = $2
        GROUP BY e.id, st.id, st.code, st.full_name, e.enrolled_at
        ORDER BY st.full_name ASC`
	var roster []models.GroupRosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, groupID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list group roster: %w", err)
	}
	return roster, nil
}
