package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unicampus/credits-api/internal/models"
	"github.com/unicampus/credits-api/internal/repository"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
	"github.com/unicampus/credits-api/pkg/export"
)

type ledgerStore interface {
	Post(ctx context.Context, tx *sqlx.Tx, p repository.PostEntryParams) (*models.CreditEntry, error)
	GetBalance(ctx context.Context, studentID int64) (decimal.Decimal, error)
	ListByStudent(ctx context.Context, studentID int64, filter models.LedgerFilter) ([]models.CreditEntry, int, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type statementExporter interface {
	Render(st export.Statement) ([]byte, error)
}

// GrantCreditsRequest describes an administrative credit grant.
type GrantCreditsRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"max=255"`
}

// BalanceResult pairs a student with the ledger-backed balance.
type BalanceResult struct {
	StudentID        int64           `json:"student_id"`
	AvailableCredits decimal.Decimal `json:"available_credits"`
}

// CreditService manages the credit ledger surface: administrative grants,
// balance reads and entry history.
type CreditService struct {
	tx        txProvider
	ledger    ledgerStore
	students  studentReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCreditService constructs CreditService.
func NewCreditService(tx txProvider, ledger ledgerStore, students studentReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{tx: tx, ledger: ledger, students: students, metrics: metrics, validator: validate, logger: logger}
}

// Grant appends a credit entry increasing the student's balance. Amount must
// be positive; the grant records who issued it.
func (s *CreditService) Grant(ctx context.Context, studentID int64, issuedBy int64, req GrantCreditsRequest) (entry *models.CreditEntry, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	if _, err = s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Administrative credit grant"
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

	entry, err = s.ledger.Post(ctx, tx, repository.PostEntryParams{
		StudentID:   studentID,
		Kind:        models.EntryKindCredit,
		Amount:      req.Amount.Round(2),
		Description: description,
		IssuedBy:    &issuedBy,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post credit grant")
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit credit grant")
	}

	s.metrics.RecordCreditGrant()
	s.logger.Info("credits granted",
		zap.Int64("student_id", studentID),
		zap.Int64("issued_by", issuedBy),
		zap.String("amount", entry.Amount.String()))

	return entry, nil
}

// Balance returns the student's current available credits.
func (s *CreditService) Balance(ctx context.Context, studentID int64) (*BalanceResult, error) {
	balance, err := s.ledger.GetBalance(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read balance")
	}
	return &BalanceResult{StudentID: studentID, AvailableCredits: balance}, nil
}

// History returns the student's ledger entries, newest first.
func (s *CreditService) History(ctx context.Context, studentID int64, filter models.LedgerFilter) ([]models.CreditEntry, *models.Pagination, error) {
	entries, total, err := s.ledger.ListByStudent(ctx, studentID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger entries")
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
	return entries, pagination, nil
}

// Statement renders the student's full ledger as a downloadable statement.
func (s *CreditService) Statement(ctx context.Context, studentID int64, exporter statementExporter) ([]byte, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	entries, _, err := s.ledger.ListByStudent(ctx, studentID, models.LedgerFilter{Page: 1, PageSize: 1000})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger entries")
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Format(time.RFC3339),
			string(e.Kind),
			e.Kind.Signed(e.Amount).StringFixed(2),
			e.BalanceAfter.StringFixed(2),
			e.Description,
		})
	}

	st := export.Statement{
		Title:   fmt.Sprintf("Credit statement for %s (%s)", student.FullName, student.Code),
		Headers: []string{"Date", "Kind", "Amount", "Balance", "Description"},
		Rows:    rows,
		Footer:  fmt.Sprintf("Available credits: %s", student.AvailableCredits.StringFixed(2)),
	}

	payload, err := exporter.Render(st)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	return payload, nil
}
