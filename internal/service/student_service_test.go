package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicampus/credits-api/internal/models"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

type fakeStudentStore struct {
	students []models.Student
	student  *models.Student
	findErr  error
	exists   bool
	created  *models.Student
}

func (f *fakeStudentStore) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return f.students, len(f.students), nil
}

func (f *fakeStudentStore) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.student, nil
}

func (f *fakeStudentStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return f.exists, nil
}

func (f *fakeStudentStore) Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	student.ID = 7
	f.created = student
	return nil
}

func TestStudentServiceCreatePostsInitialAllocation(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := &fakeStudentStore{}
	ledger := &fakeLedger{balanceAfter: decimal.RequireFromString("50.00")}
	svc := NewStudentService(tx, repo, ledger, decimal.RequireFromString("50.00"), nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	student, err := svc.Create(context.Background(), CreateStudentRequest{Code: "S-007", FullName: "Ada Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), student.ID)
	assert.True(t, student.AvailableCredits.Equal(decimal.RequireFromString("50.00")))

	require.Len(t, ledger.posts, 1)
	post := ledger.posts[0]
	assert.Equal(t, models.EntryKindCredit, post.Kind)
	assert.True(t, post.Amount.Equal(decimal.RequireFromString("50.00")))
	assert.Equal(t, "Initial credit allocation", post.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceCreateZeroDefaultSkipsLedger(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := &fakeStudentStore{}
	ledger := &fakeLedger{}
	svc := NewStudentService(tx, repo, ledger, decimal.Zero, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	student, err := svc.Create(context.Background(), CreateStudentRequest{Code: "S-008", FullName: "Grace Hopper"})
	require.NoError(t, err)
	assert.True(t, student.AvailableCredits.IsZero())
	assert.Empty(t, ledger.posts)
}

func TestStudentServiceCreateOverridesDefaultAllocation(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := &fakeStudentStore{}
	ledger := &fakeLedger{balanceAfter: decimal.RequireFromString("120.00")}
	svc := NewStudentService(tx, repo, ledger, decimal.RequireFromString("50.00"), nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	override := decimal.RequireFromString("120.00")
	student, err := svc.Create(context.Background(), CreateStudentRequest{
		Code:           "S-009",
		FullName:       "Katherine Johnson",
		InitialCredits: &override,
	})
	require.NoError(t, err)
	assert.True(t, student.AvailableCredits.Equal(override))

	require.Len(t, ledger.posts, 1)
	assert.True(t, ledger.posts[0].Amount.Equal(override))
}

func TestStudentServiceCreateRejectsNegativeAllocation(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	repo := &fakeStudentStore{}
	ledger := &fakeLedger{}
	svc := NewStudentService(tx, repo, ledger, decimal.RequireFromString("50.00"), nil, nil)

	override := decimal.RequireFromString("-1.00")
	_, err := svc.Create(context.Background(), CreateStudentRequest{
		Code:           "S-010",
		FullName:       "Annie Easley",
		InitialCredits: &override,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRequest.Code, appErrors.FromError(err).Code)
	assert.Empty(t, ledger.posts)
}

func TestStudentServiceCreateDuplicateCode(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	repo := &fakeStudentStore{exists: true}
	ledger := &fakeLedger{}
	svc := NewStudentService(tx, repo, ledger, decimal.RequireFromString("50.00"), nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{Code: "S-007", FullName: "Ada Lovelace"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestStudentServiceCreateRollsBackOnLedgerFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := &fakeStudentStore{}
	ledger := &fakeLedger{err: sql.ErrConnDone}
	svc := NewStudentService(tx, repo, ledger, decimal.RequireFromString("50.00"), nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), CreateStudentRequest{Code: "S-007", FullName: "Ada Lovelace"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceGetNotFound(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	repo := &fakeStudentStore{findErr: sql.ErrNoRows}
	svc := NewStudentService(tx, repo, &fakeLedger{}, decimal.Zero, nil, nil)

	_, err := svc.Get(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
