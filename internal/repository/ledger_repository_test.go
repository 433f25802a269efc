package repository

import (
	"context"
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

func newLedgerMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLedgerRepositoryPostDebit(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE students SET available_credits = available_credits").
		WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"available_credits"}).AddRow("45.00"))
	mock.ExpectQuery("INSERT INTO credit_entries").
		WithArgs(int64(7), models.EntryKindDebit, sqlmock.AnyArg(), sqlmock.AnyArg(), "Enrollment in Algebra (ALG-01)", sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))

	tx, err := db.Beginx()
	require.NoError(t, err)

	enrollmentID := int64(12)
	entry, err := repo.Post(context.Background(), tx, PostEntryParams{
		StudentID:    7,
		Kind:         models.EntryKindDebit,
		Amount:       decimal.RequireFromString("5.00"),
		Description:  "Enrollment in Algebra (ALG-01)",
		EnrollmentID: &enrollmentID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), entry.ID)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("45.00")))
	assert.NotEmpty(t, entry.Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryPostRejectsNonPositiveAmount(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)

	_, err = repo.Post(context.Background(), tx, PostEntryParams{
		StudentID: 7,
		Kind:      models.EntryKindCredit,
		Amount:    decimal.Zero,
	})
	require.Error(t, err)

	_, err = repo.Post(context.Background(), tx, PostEntryParams{
		StudentID: 7,
		Kind:      models.EntryKindCredit,
		Amount:    decimal.RequireFromString("-3"),
	})
	require.Error(t, err)
}

func TestLedgerRepositoryGetBalance(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT available_credits FROM students WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"available_credits"}).AddRow("50.00"))

	balance, err := repo.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("50")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "kind", "amount", "balance_after", "description", "enrollment_id", "issued_by", "reference", "created_at"}).
		AddRow(int64(2), int64(7), "debit", "5.00", "45.00", "Enrollment in Algebra (ALG-01)", int64(12), nil, "ref-2", time.Now()).
		AddRow(int64(1), int64(7), "credit", "50.00", "50.00", "Initial credit allocation", nil, nil, "ref-1", time.Now())
	mock.ExpectQuery("SELECT id, student_id, kind, amount, balance_after, description, enrollment_id, issued_by, reference, created_at").
		WithArgs(int64(7)).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	entries, total, err := repo.ListByStudent(context.Background(), 7, models.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, total)
	assert.Equal(t, models.EntryKindDebit, entries[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
