package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unicampus/credits-api/internal/models"
	"github.com/unicampus/credits-api/internal/repository"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) error
}

// CreateStudentRequest holds payload for registering students.
// InitialCredits overrides the configured default allocation when set.
type CreateStudentRequest struct {
	Code           string           `json:"code" validate:"required"`
	FullName       string           `json:"full_name" validate:"required"`
	Phone          string           `json:"phone"`
	InitialCredits *decimal.Decimal `json:"initial_credits,omitempty"`
}

// StudentService handles student registration and lookups. Registration
// funds the new account through the ledger so the initial allocation shows
// up as the first history entry.
type StudentService struct {
	tx             txProvider
	repo           studentStore
	ledger         ledgerPoster
	defaultCredits decimal.Decimal
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(tx txProvider, repo studentStore, ledger ledgerPoster, defaultCredits decimal.Decimal, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{tx: tx, repo: repo, ledger: ledger, defaultCredits: defaultCredits, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student and posts the initial credit allocation.
// The account row and its opening ledger entry commit together.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (student *models.Student, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student code already in use")
	}

	allocation := s.defaultCredits
	if req.InitialCredits != nil {
		if req.InitialCredits.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "initial credits must not be negative")
		}
		allocation = req.InitialCredits.Round(2)
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	student = &models.Student{
		Code:     req.Code,
		FullName: req.FullName,
		Phone:    req.Phone,
		Active:   true,
	}
	if err = s.repo.Create(ctx, tx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if allocation.IsPositive() {
		entry, postErr := s.ledger.Post(ctx, tx, repository.PostEntryParams{
			StudentID:   student.ID,
			Kind:        models.EntryKindCredit,
			Amount:      allocation,
			Description: "Initial credit allocation",
		})
		if postErr != nil {
			err = appErrors.Wrap(postErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post initial allocation")
			return nil, err
		}
		student.AvailableCredits = entry.BalanceAfter
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit student registration")
	}

	s.logger.Info("student registered",
		zap.Int64("student_id", student.ID),
		zap.String("code", student.Code),
		zap.String("initial_credits", allocation.StringFixed(2)))

	return student, nil
}
