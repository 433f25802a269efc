package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unicampus/credits-api/internal/models"
)

// GroupRepository handles persistence of course groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupColumns = `id, code, name, subject_id, semester, year, max_students, active, created_at, updated_at`

const groupDetailQuery = `SELECT g.id, g.code, g.name, g.subject_id, g.semester, g.year, g.max_students, g.active, g.created_at, g.updated_at,
        s.code AS subject_code, s.name AS subject_name, s.active AS subject_active, s.credit_cost, s.professor_id
        FROM groups g
        JOIN subjects s ON s.id = g.subject_id`

// List returns groups filtered by the provided criteria.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	base := "FROM groups WHERE 1=1"
	var args []interface{}

	if filter.SubjectID != 0 {
		base += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.Active != nil {
		base += fmt.Sprintf(" AND active = $%d", len(args)+1)
		args = append(args, *filter.Active)
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"code": true, "name": true, "year": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", groupColumns, base, sortBy, order, size, offset)
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}
	return groups, total, nil
}

// FindByID returns a group by its ID.
func (r *GroupRepository) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	query := fmt.Sprintf("SELECT %s FROM groups WHERE id = $1", groupColumns)
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// FindDetailByID returns a group with its subject's billing attributes.
func (r *GroupRepository) FindDetailByID(ctx context.Context, id int64) (*models.GroupDetail, error) {
	query := groupDetailQuery + " WHERE g.id = $1"
	var detail models.GroupDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindDetailForUpdate loads the group joined with its subject while locking
// the group row. The lock serializes concurrent enrollments into the same
// group so the capacity count stays valid until commit.
func (r *GroupRepository) FindDetailForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.GroupDetail, error) {
	query := groupDetailQuery + " WHERE g.id = $1 FOR UPDATE OF g"
	var detail models.GroupDetail
	if err := tx.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByCode checks whether a group code is already taken.
func (r *GroupRepository) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	query := `SELECT 1 FROM groups WHERE code = $1`
	args := []interface{}{code}
	if excludeID != 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check group code: %w", err)
	}
	return true, nil
}

// Create persists a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	group.Active = true
	const query = `INSERT INTO groups (code, name, subject_id, semester, year, max_students, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7) RETURNING id`
	if err := r.db.GetContext(ctx, &group.ID, query,
		group.Code, group.Name, group.SubjectID, group.Semester, group.Year, group.MaxStudents, now); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Update persists mutable group fields.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE groups SET code = $2, name = $3, semester = $4, year = $5, max_students = $6, active = $7, updated_at = $8
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		group.ID, group.Code, group.Name, group.Semester, group.Year, group.MaxStudents, group.Active, group.UpdatedAt); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a group.
func (r *GroupRepository) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE groups SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate group: %w", err)
	}
	return nil
}

// ListAvailableForStudent returns active groups of active subjects the
// student holds no active enrollment in.
func (r *GroupRepository) ListAvailableForStudent(ctx context.Context, studentID int64) ([]models.GroupDetail, error) {
	query := groupDetailQuery + `
        WHERE g.active AND s.active
          AND NOT EXISTS (
            SELECT 1 FROM enrollments e
            WHERE e.group_id = g.id AND e.student_id = $1 AND e.status = $2
          )
        ORDER BY s.code ASC, g.code ASC`
	var groups []models.GroupDetail
	if err := r.db.SelectContext(ctx, &groups, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list available groups: %w", err)
	}
	return groups, nil
}
