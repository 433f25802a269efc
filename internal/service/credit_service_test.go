package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicampus/credits-api/internal/models"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
	"github.com/unicampus/credits-api/pkg/export"
)

type fakeLedgerStore struct {
	fakeLedger
	balance    decimal.Decimal
	balanceErr error
	entries    []models.CreditEntry
	listErr    error
}

func (f *fakeLedgerStore) GetBalance(ctx context.Context, studentID int64) (decimal.Decimal, error) {
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeLedgerStore) ListByStudent(ctx context.Context, studentID int64, filter models.LedgerFilter) ([]models.CreditEntry, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.entries, len(f.entries), nil
}

type fakeStudentReader struct {
	student *models.Student
	err     error
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.student, nil
}

func TestCreditServiceGrant(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	ledger := &fakeLedgerStore{}
	ledger.balanceAfter = decimal.RequireFromString("75.00")
	students := &fakeStudentReader{student: &models.Student{ID: 7, Active: true}}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	entry, err := svc.Grant(context.Background(), 7, 1, GrantCreditsRequest{
		Amount:      decimal.RequireFromString("25.00"),
		Description: "Scholarship top-up",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EntryKindCredit, entry.Kind)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("25.00")))
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("75.00")))
	require.NotNil(t, entry.IssuedBy)
	assert.Equal(t, int64(1), *entry.IssuedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditServiceGrantRejectsNonPositiveAmount(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	ledger := &fakeLedgerStore{}
	students := &fakeStudentReader{student: &models.Student{ID: 7}}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	_, err := svc.Grant(context.Background(), 7, 1, GrantCreditsRequest{Amount: decimal.Zero})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Grant(context.Background(), 7, 1, GrantCreditsRequest{Amount: decimal.RequireFromString("-10")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, ledger.posts)
}

func TestCreditServiceGrantStudentNotFound(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	ledger := &fakeLedgerStore{}
	students := &fakeStudentReader{err: sql.ErrNoRows}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	_, err := svc.Grant(context.Background(), 404, 1, GrantCreditsRequest{Amount: decimal.RequireFromString("10")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreditServiceBalance(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	ledger := &fakeLedgerStore{balance: decimal.RequireFromString("45.00")}
	students := &fakeStudentReader{student: &models.Student{ID: 7}}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	result, err := svc.Balance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.StudentID)
	assert.True(t, result.AvailableCredits.Equal(decimal.RequireFromString("45.00")))
}

func TestCreditServiceBalanceStudentNotFound(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	ledger := &fakeLedgerStore{balanceErr: sql.ErrNoRows}
	students := &fakeStudentReader{}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	_, err := svc.Balance(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreditServiceHistory(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	ledger := &fakeLedgerStore{entries: []models.CreditEntry{
		{ID: 2, Kind: models.EntryKindDebit, Amount: decimal.RequireFromString("5.00"), BalanceAfter: decimal.RequireFromString("45.00")},
		{ID: 1, Kind: models.EntryKindCredit, Amount: decimal.RequireFromString("50.00"), BalanceAfter: decimal.RequireFromString("50.00")},
	}}
	students := &fakeStudentReader{}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	entries, pagination, err := svc.History(context.Background(), 7, models.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}

func TestCreditServiceStatementCSV(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	ledger := &fakeLedgerStore{entries: []models.CreditEntry{
		{
			ID:           1,
			Kind:         models.EntryKindCredit,
			Amount:       decimal.RequireFromString("50.00"),
			BalanceAfter: decimal.RequireFromString("50.00"),
			Description:  "Initial credit allocation",
			CreatedAt:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
	students := &fakeStudentReader{student: &models.Student{
		ID:               7,
		Code:             "S-007",
		FullName:         "Ada Lovelace",
		AvailableCredits: decimal.RequireFromString("50.00"),
	}}
	svc := NewCreditService(tx, ledger, students, nil, nil, nil)

	payload, err := svc.Statement(context.Background(), 7, export.NewCSVExporter())
	require.NoError(t, err)
	body := string(payload)
	assert.Contains(t, body, "Initial credit allocation")
	assert.Contains(t, body, "50.00")
}
