package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unicampus/credits-api/internal/models"
	"github.com/unicampus/credits-api/internal/repository"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type accountLocker interface {
	FindForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Student, error)
}

type groupLocker interface {
	FindDetailForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.GroupDetail, error)
	ListAvailableForStudent(ctx context.Context, studentID int64) ([]models.GroupDetail, error)
}

type enrollmentStore interface {
	ExistsActive(ctx context.Context, tx *sqlx.Tx, studentID, groupID int64) (bool, error)
	CountActive(ctx context.Context, tx *sqlx.Tx, groupID int64) (int, error)
	Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	FindActiveForUpdate(ctx context.Context, tx *sqlx.Tx, id, studentID int64) (*models.Enrollment, error)
	MarkWithdrawn(ctx context.Context, tx *sqlx.Tx, id int64, at time.Time) error
	ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error)
}

type ledgerPoster interface {
	Post(ctx context.Context, tx *sqlx.Tx, p repository.PostEntryParams) (*models.CreditEntry, error)
}

// EnrollRequest describes the enrollment payload.
type EnrollRequest struct {
	GroupID int64 `json:"group_id" validate:"required,gt=0"`
}

// EnrollmentResult summarizes a successful enrollment.
type EnrollmentResult struct {
	Enrollment       *models.Enrollment `json:"enrollment"`
	GroupCode        string             `json:"group_code"`
	SubjectName      string             `json:"subject_name"`
	CreditsCharged   decimal.Decimal    `json:"credits_charged"`
	RemainingCredits decimal.Decimal    `json:"remaining_credits"`
}

// WithdrawalResult summarizes a successful withdrawal.
type WithdrawalResult struct {
	Enrollment       *models.Enrollment `json:"enrollment"`
	RefundAmount     decimal.Decimal    `json:"refund_amount"`
	RemainingCredits decimal.Decimal    `json:"remaining_credits"`
}

// EnrollmentService coordinates enrollment and withdrawal workflows. Every
// mutation runs inside a single database transaction so the enrollment row,
// the ledger entry and the balance move together or not at all.
type EnrollmentService struct {
	tx               txProvider
	accounts         accountLocker
	groups           groupLocker
	enrollments      enrollmentStore
	ledger           ledgerPoster
	refundWindowDays int
	metrics          *MetricsService
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(tx txProvider, accounts accountLocker, groups groupLocker, enrollments enrollmentStore, ledger ledgerPoster, refundWindowDays int, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:               tx,
		accounts:         accounts,
		groups:           groups,
		enrollments:      enrollments,
		ledger:           ledger,
		refundWindowDays: refundWindowDays,
		metrics:          metrics,
		validator:        validate,
		logger:           logger,
	}
}

// Enroll registers a student in a group, charging the subject's credit cost.
// The student and group rows are locked for the duration of the transaction,
// so concurrent attempts against the same account or the same group's last
// seat serialize and re-check against committed state.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID int64, req EnrollRequest) (result *EnrollmentResult, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	defer func() {
		s.metrics.RecordEnrollment(outcomeLabel(err))
	}()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	student, err := s.accounts.FindForUpdate(ctx, tx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "student is inactive")
	}

	group, err := s.groups.FindDetailForUpdate(ctx, tx, req.GroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if !group.Active || !group.SubjectActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}

	exists, err := s.enrollments.ExistsActive(ctx, tx, studentID, group.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this group")
	}

	if student.AvailableCredits.LessThan(group.CreditCost) {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidRequest, "insufficient credits", map[string]interface{}{
			"required":  group.CreditCost.StringFixed(2),
			"available": student.AvailableCredits.StringFixed(2),
		})
	}

	active, err := s.enrollments.CountActive(ctx, tx, group.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count group enrollments")
	}
	if active >= group.MaxStudents {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "group is full")
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		StudentID:      studentID,
		GroupID:        group.ID,
		Status:         models.EnrollmentStatusActive,
		CreditsCharged: group.CreditCost,
		EnrolledAt:     now,
	}
	if err = s.enrollments.Create(ctx, tx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	remaining := student.AvailableCredits
	if group.CreditCost.IsPositive() {
		entry, postErr := s.ledger.Post(ctx, tx, repository.PostEntryParams{
			StudentID:    studentID,
			Kind:         models.EntryKindDebit,
			Amount:       group.CreditCost,
			Description:  fmt.Sprintf("Enrollment in %s (%s)", group.SubjectName, group.Code),
			EnrollmentID: &enrollment.ID,
		})
		if postErr != nil {
			err = appErrors.Wrap(postErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post enrollment charge")
			return nil, err
		}
		remaining = entry.BalanceAfter
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
	}

	s.logger.Info("student enrolled",
		zap.Int64("student_id", studentID),
		zap.Int64("group_id", group.ID),
		zap.String("credits_charged", group.CreditCost.String()))

	return &EnrollmentResult{
		Enrollment:       enrollment,
		GroupCode:        group.Code,
		SubjectName:      group.SubjectName,
		CreditsCharged:   group.CreditCost,
		RemainingCredits: remaining,
	}, nil
}

// Withdraw cancels an active enrollment owned by the student and refunds
// credits according to the refund policy. The refund is computed from the
// charge frozen on the enrollment, not from the subject's current cost.
func (s *EnrollmentService) Withdraw(ctx context.Context, studentID, enrollmentID int64) (result *WithdrawalResult, err error) {
	defer func() {
		s.metrics.RecordWithdrawal(outcomeLabel(err))
	}()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Lock the account first so enrollments and withdrawals for the same
	// student acquire locks in the same order.
	student, err := s.accounts.FindForUpdate(ctx, tx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	enrollment, err := s.enrollments.FindActiveForUpdate(ctx, tx, enrollmentID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "active enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	group, err := s.groups.FindDetailForUpdate(ctx, tx, enrollment.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	now := time.Now().UTC()
	fraction := RefundFraction(enrollment.EnrolledAt, now, s.refundWindowDays)
	refund := enrollment.CreditsCharged.Mul(fraction).Round(2)

	if err = s.enrollments.MarkWithdrawn(ctx, tx, enrollment.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "active enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enrollment withdrawn")
	}

	remaining := student.AvailableCredits
	if refund.IsPositive() {
		entry, postErr := s.ledger.Post(ctx, tx, repository.PostEntryParams{
			StudentID:    studentID,
			Kind:         models.EntryKindRefund,
			Amount:       refund,
			Description:  fmt.Sprintf("Refund for withdrawal from %s (%s)", group.SubjectName, group.Code),
			EnrollmentID: &enrollment.ID,
		})
		if postErr != nil {
			err = appErrors.Wrap(postErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post refund")
			return nil, err
		}
		remaining = entry.BalanceAfter
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit withdrawal")
	}

	enrollment.Status = models.EnrollmentStatusWithdrawn
	enrollment.WithdrawnAt = &now

	s.logger.Info("student withdrawn",
		zap.Int64("student_id", studentID),
		zap.Int64("enrollment_id", enrollment.ID),
		zap.String("refund", refund.String()))

	return &WithdrawalResult{
		Enrollment:       enrollment,
		RefundAmount:     refund,
		RemainingCredits: remaining,
	}, nil
}

// ListByStudent returns the student's enrollment history, newest first.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// AvailableGroups returns active groups of active subjects the student is
// not currently enrolled in.
func (s *EnrollmentService) AvailableGroups(ctx context.Context, studentID int64) ([]models.GroupDetail, error) {
	groups, err := s.groups.ListAvailableForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available groups")
	}
	return groups, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return "rejected"
}
