package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unicampus/credits-api/internal/models"
)

// GradeRepository handles persistence of grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, enrollment_id, professor_id, value, assessment_type, weight, comments, created_at, updated_at`

// FindByID returns a grade by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id int64) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE id = $1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Create persists a new grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	now := time.Now().UTC()
	grade.CreatedAt = now
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (enrollment_id, professor_id, value, assessment_type, weight, comments, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	if err := r.db.GetContext(ctx, &grade.ID, query,
		grade.EnrollmentID, grade.ProfessorID, grade.Value, grade.AssessmentType, grade.Weight, grade.Comments, now); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update persists mutable grade fields.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET value = $2, assessment_type = $3, weight = $4, comments = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		grade.ID, grade.Value, grade.AssessmentType, grade.Weight, grade.Comments, grade.UpdatedAt); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// ListByEnrollment returns the grades recorded for one enrollment.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE enrollment_id = $1 ORDER BY created_at ASC", gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment grades: %w", err)
	}
	return grades, nil
}
