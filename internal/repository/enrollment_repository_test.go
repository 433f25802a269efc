package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicampus/credits-api/internal/models"
)

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND group_id = $2 AND status = $3 LIMIT 1")).
		WithArgs(int64(7), int64(3), models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	tx, err := db.Beginx()
	require.NoError(t, err)

	exists, err := repo.ExistsActive(context.Background(), tx, 7, 3)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs(int64(7), int64(3), models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)

	tx, err := db.Beginx()
	require.NoError(t, err)

	exists, err := repo.ExistsActive(context.Background(), tx, 7, 3)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO enrollments").
		WithArgs(int64(7), int64(3), models.EnrollmentStatusActive, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))

	tx, err := db.Beginx()
	require.NoError(t, err)

	enrollment := &models.Enrollment{
		StudentID:      7,
		GroupID:        3,
		CreditsCharged: decimal.RequireFromString("5.00"),
	}
	require.NoError(t, repo.Create(context.Background(), tx, enrollment))
	assert.Equal(t, int64(41), enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkWithdrawnMissesWhenNotActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs(int64(41), models.EnrollmentStatusWithdrawn, sqlmock.AnyArg(), models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)

	err = repo.MarkWithdrawn(context.Background(), tx, 41, time.Now().UTC())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE group_id = $1 AND status = $2")).
		WithArgs(int64(3), models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))

	tx, err := db.Beginx()
	require.NoError(t, err)

	count, err := repo.CountActive(context.Background(), tx, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, count)
}

func TestEnrollmentRepositoryFindActiveForUpdate(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "student_id", "group_id", "status", "credits_charged", "enrolled_at", "withdrawn_at", "created_at"}).
		AddRow(int64(41), int64(7), int64(3), "active", "5.00", time.Now(), nil, time.Now())
	mock.ExpectQuery("SELECT id, student_id, group_id, status, credits_charged, enrolled_at, withdrawn_at, created_at FROM enrollments WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(41), int64(7), models.EnrollmentStatusActive).
		WillReturnRows(rows)

	tx, err := db.Beginx()
	require.NoError(t, err)

	enrollment, err := repo.FindActiveForUpdate(context.Background(), tx, 41, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(41), enrollment.ID)
	assert.True(t, enrollment.CreditsCharged.Equal(decimal.RequireFromString("5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCompleteActiveByGroup(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs(int64(3), models.EnrollmentStatusCompleted, models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 12))

	tx, err := db.Beginx()
	require.NoError(t, err)

	completed, err := repo.CompleteActiveByGroup(context.Background(), tx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), completed)
}
