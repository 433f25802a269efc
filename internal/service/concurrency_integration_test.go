package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicampus/credits-api/internal/models"
	"github.com/unicampus/credits-api/internal/repository"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

// These tests exercise the row-locking behavior of the enroll and withdraw
// transactions against a real database. They are skipped unless
// TEST_DATABASE_URL points at a Postgres instance with the schema from
// scripts/schema.sql applied.

type integrationFixture struct {
	db          *sqlx.DB
	students    *StudentService
	enrollments *EnrollmentService
	credits     *CreditService
	subjectRepo *repository.SubjectRepository
	groupRepo   *repository.GroupRepository
}

func newIntegrationFixture(t *testing.T) *integrationFixture {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	return &integrationFixture{
		db:          db,
		students:    NewStudentService(db, studentRepo, ledgerRepo, decimal.RequireFromString("50.00"), nil, nil),
		enrollments: NewEnrollmentService(db, studentRepo, groupRepo, enrollmentRepo, ledgerRepo, 7, nil, nil, nil),
		credits:     NewCreditService(db, ledgerRepo, studentRepo, nil, nil, nil),
		subjectRepo: subjectRepo,
		groupRepo:   groupRepo,
	}
}

func (f *integrationFixture) newStudent(t *testing.T) *models.Student {
	student, err := f.students.Create(context.Background(), CreateStudentRequest{
		Code:     "S-" + uuid.NewString()[:8],
		FullName: "Integration Student",
	})
	require.NoError(t, err)
	return student
}

func (f *integrationFixture) newGroup(t *testing.T, maxStudents int) *models.Group {
	ctx := context.Background()
	subject := &models.Subject{
		Code:       "SUB-" + uuid.NewString()[:8],
		Name:       "Integration Subject",
		CreditCost: decimal.RequireFromString("5.00"),
	}
	require.NoError(t, f.subjectRepo.Create(ctx, subject))

	group := &models.Group{
		Code:        "GRP-" + uuid.NewString()[:8],
		Name:        "Integration Group",
		SubjectID:   subject.ID,
		Semester:    1,
		Year:        2026,
		MaxStudents: maxStudents,
	}
	require.NoError(t, f.groupRepo.Create(ctx, group))
	return group
}

func TestIntegrationLastSeatRace(t *testing.T) {
	f := newIntegrationFixture(t)
	group := f.newGroup(t, 1)

	const contenders = 8
	students := make([]*models.Student, contenders)
	for i := range students {
		students[i] = f.newStudent(t)
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.enrollments.Enroll(context.Background(), students[i].ID, EnrollRequest{GroupID: group.ID})
		}(i)
	}
	wg.Wait()

	var successes, full int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if appErrors.FromError(err).Message == "group is full" {
			full++
		}
	}
	assert.Equal(t, 1, successes, "exactly one contender may take the last seat")
	assert.Equal(t, contenders-1, full)
}

func TestIntegrationDoubleWithdraw(t *testing.T) {
	f := newIntegrationFixture(t)
	group := f.newGroup(t, 30)
	student := f.newStudent(t)

	result, err := f.enrollments.Enroll(context.Background(), student.ID, EnrollRequest{GroupID: group.ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.enrollments.Withdraw(context.Background(), student.ID, result.Enrollment.ID)
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "a second withdrawal of the same enrollment must fail")

	// Full refund within the window restores the starting balance.
	balance, err := f.credits.Balance(context.Background(), student.ID)
	require.NoError(t, err)
	assert.True(t, balance.AvailableCredits.Equal(decimal.RequireFromString("50.00")),
		fmt.Sprintf("expected 50.00, got %s", balance.AvailableCredits))
}

func TestIntegrationConcurrentGrantsKeepLedgerConsistent(t *testing.T) {
	f := newIntegrationFixture(t)
	student := f.newStudent(t)

	const grants = 10
	var wg sync.WaitGroup
	for i := 0; i < grants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.credits.Grant(context.Background(), student.ID, 1, GrantCreditsRequest{
				Amount:      decimal.RequireFromString("1.00"),
				Description: "concurrent grant",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := f.credits.Balance(context.Background(), student.ID)
	require.NoError(t, err)
	assert.True(t, balance.AvailableCredits.Equal(decimal.RequireFromString("60.00")))

	// The latest entry's snapshot must agree with the materialized balance.
	entries, _, err := f.credits.History(context.Background(), student.ID, models.LedgerFilter{PageSize: 1})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.True(t, entries[0].BalanceAfter.Equal(balance.AvailableCredits))
}
