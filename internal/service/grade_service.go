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
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

type gradeStore interface {
	FindByID(ctx context.Context, id int64) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.Grade, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Enrollment, error)
	ListRoster(ctx context.Context, groupID int64) ([]models.GroupRosterEntry, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error)
	CompleteActiveByGroup(ctx context.Context, tx *sqlx.Tx, groupID int64) (int64, error)
}

type groupDetailReader interface {
	FindDetailByID(ctx context.Context, id int64) (*models.GroupDetail, error)
}

// AssignGradeRequest holds payload for recording a grade.
type AssignGradeRequest struct {
	EnrollmentID   int64           `json:"enrollment_id" validate:"required,gt=0"`
	Value          decimal.Decimal `json:"value" validate:"required"`
	AssessmentType string          `json:"assessment_type" validate:"required"`
	Weight         int             `json:"weight" validate:"required,min=1,max=100"`
	Comments       *string         `json:"comments"`
}

// UpdateGradeRequest holds payload for correcting a grade.
type UpdateGradeRequest struct {
	Value          decimal.Decimal `json:"value" validate:"required"`
	AssessmentType string          `json:"assessment_type" validate:"required"`
	Weight         int             `json:"weight" validate:"required,min=1,max=100"`
	Comments       *string         `json:"comments"`
}

var gradeMax = decimal.NewFromInt(100)

// GradeService handles grading workflows for professors: rosters, grade
// assignment and closing a group at the end of the term. Every operation
// verifies the professor teaches the subject behind the group.
type GradeService struct {
	tx          txProvider
	grades      gradeStore
	enrollments enrollmentReader
	groups      groupDetailReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the grade service.
func NewGradeService(tx txProvider, grades gradeStore, enrollments enrollmentReader, groups groupDetailReader, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{tx: tx, grades: grades, enrollments: enrollments, groups: groups, validator: validate, logger: logger}
}

func (s *GradeService) authorizeGroup(ctx context.Context, professorID, groupID int64) (*models.GroupDetail, error) {
	group, err := s.groups.FindDetailByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if group.ProfessorID == nil || *group.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "professor does not teach this group")
	}
	return group, nil
}

// Roster returns the active enrollments of a group taught by the professor.
func (s *GradeService) Roster(ctx context.Context, professorID, groupID int64) ([]models.GroupRosterEntry, error) {
	if _, err := s.authorizeGroup(ctx, professorID, groupID); err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListRoster(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}

// Assign records a grade against an enrollment in a group the professor
// teaches. Withdrawn enrollments cannot be graded.
func (s *GradeService) Assign(ctx context.Context, professorID int64, req AssignGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Value.IsNegative() || req.Value.GreaterThan(gradeMax) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade value must be between 0 and 100")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "cannot grade a withdrawn enrollment")
	}
	if _, err = s.authorizeGroup(ctx, professorID, enrollment.GroupID); err != nil {
		return nil, err
	}

	grade := &models.Grade{
		EnrollmentID:   enrollment.ID,
		ProfessorID:    professorID,
		Value:          req.Value.Round(2),
		AssessmentType: req.AssessmentType,
		Weight:         req.Weight,
		Comments:       req.Comments,
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}
	s.logger.Info("grade assigned",
		zap.Int64("grade_id", grade.ID),
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("professor_id", professorID))
	return grade, nil
}

// Update corrects a grade previously recorded by the professor.
func (s *GradeService) Update(ctx context.Context, professorID, gradeID int64, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Value.IsNegative() || req.Value.GreaterThan(gradeMax) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade value must be between 0 and 100")
	}

	grade, err := s.grades.FindByID(ctx, gradeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if grade.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "grade belongs to another professor")
	}

	grade.Value = req.Value.Round(2)
	grade.AssessmentType = req.AssessmentType
	grade.Weight = req.Weight
	grade.Comments = req.Comments
	if err := s.grades.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	return grade, nil
}

// StudentTranscript returns a student's enrollments with their grades.
func (s *GradeService) StudentTranscript(ctx context.Context, studentID int64) ([]models.StudentGrades, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	transcript := make([]models.StudentGrades, 0, len(enrollments))
	for _, e := range enrollments {
		grades, err := s.grades.ListByEnrollment(ctx, e.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
		}
		transcript = append(transcript, models.StudentGrades{
			EnrollmentID: e.ID,
			SubjectCode:  e.SubjectCode,
			SubjectName:  e.SubjectName,
			GroupName:    e.GroupName,
			Grades:       grades,
		})
	}
	return transcript, nil
}

// CloseGroup marks every active enrollment in the group as completed. Used
// at the end of the term once grading is done; completed enrollments are
// terminal and refuse withdrawal.
func (s *GradeService) CloseGroup(ctx context.Context, professorID, groupID int64) (completed int64, err error) {
	if _, err = s.authorizeGroup(ctx, professorID, groupID); err != nil {
		return 0, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	completed, err = s.enrollments.CompleteActiveByGroup(ctx, tx, groupID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollments")
	}

	if err = tx.Commit(); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit group close")
	}

	s.logger.Info("group closed",
		zap.Int64("group_id", groupID),
		zap.Int64("completed_enrollments", completed))
	return completed, nil
}
