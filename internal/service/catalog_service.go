package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unicampus/credits-api/internal/models"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

type subjectStore interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Deactivate(ctx context.Context, id int64) error
}

type groupStore interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error)
	FindDetailByID(ctx context.Context, id int64) (*models.GroupDetail, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	Deactivate(ctx context.Context, id int64) error
}

// CreateSubjectRequest holds payload for creating subjects.
type CreateSubjectRequest struct {
	Code        string          `json:"code" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	CreditCost  decimal.Decimal `json:"credit_cost" validate:"required"`
	Description *string         `json:"description"`
	ProfessorID *int64          `json:"professor_id"`
}

// UpdateSubjectRequest holds payload for updating subjects. Changing the
// credit cost only affects future enrollments.
type UpdateSubjectRequest struct {
	Name        string          `json:"name" validate:"required"`
	CreditCost  decimal.Decimal `json:"credit_cost" validate:"required"`
	Description *string         `json:"description"`
	ProfessorID *int64          `json:"professor_id"`
	Active      bool            `json:"active"`
}

// CreateGroupRequest holds payload for creating groups.
type CreateGroupRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	SubjectID   int64  `json:"subject_id" validate:"required,gt=0"`
	Semester    int    `json:"semester" validate:"required,min=1,max=2"`
	Year        int    `json:"year" validate:"required,min=2000"`
	MaxStudents int    `json:"max_students" validate:"required,gt=0"`
}

// UpdateGroupRequest holds payload for updating groups.
type UpdateGroupRequest struct {
	Name        string `json:"name" validate:"required"`
	MaxStudents int    `json:"max_students" validate:"required,gt=0"`
	Active      bool   `json:"active"`
}

// CatalogService manages the course catalog: subjects and their scheduled
// groups. Catalog reads go through the cache; anything touching balances or
// enrollments does not.
type CatalogService struct {
	subjects  subjectStore
	groups    groupStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(subjects subjectStore, groups groupStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{subjects: subjects, groups: groups, cache: cache, validator: validate, logger: logger}
}

func subjectCacheKey(id int64) string {
	return fmt.Sprintf("catalog:subject:%d", id)
}

func groupCacheKey(id int64) string {
	return fmt.Sprintf("catalog:group:%d", id)
}

// ListSubjects returns subjects with pagination metadata.
func (s *CatalogService) ListSubjects(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.subjects.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
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
	return subjects, pagination, nil
}

// GetSubject returns a single subject, served from cache when possible.
func (s *CatalogService) GetSubject(ctx context.Context, id int64) (*models.Subject, error) {
	var cached models.Subject
	if hit, _ := s.cache.Get(ctx, subjectCacheKey(id), &cached); hit {
		return &cached, nil
	}
	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	_ = s.cache.Set(ctx, subjectCacheKey(id), subject, 0)
	return subject, nil
}

// CreateSubject registers a new subject.
func (s *CatalogService) CreateSubject(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if !req.CreditCost.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credit cost must be positive")
	}
	exists, err := s.subjects.ExistsByCode(ctx, req.Code, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already in use")
	}
	subject := &models.Subject{
		Code:        req.Code,
		Name:        req.Name,
		CreditCost:  req.CreditCost.Round(2),
		Description: req.Description,
		ProfessorID: req.ProfessorID,
		Active:      true,
	}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.logger.Info("subject created", zap.Int64("subject_id", subject.ID), zap.String("code", subject.Code))
	return subject, nil
}

// UpdateSubject modifies a subject and drops its cached copy. Existing
// enrollments keep the charge frozen at enrollment time.
func (s *CatalogService) UpdateSubject(ctx context.Context, id int64, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if !req.CreditCost.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credit cost must be positive")
	}
	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	subject.Name = req.Name
	subject.CreditCost = req.CreditCost.Round(2)
	subject.Description = req.Description
	subject.ProfessorID = req.ProfessorID
	subject.Active = req.Active
	if err := s.subjects.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	_ = s.cache.Invalidate(ctx, subjectCacheKey(id))
	return subject, nil
}

// DeactivateSubject retires a subject from the catalog. Active enrollments
// in its groups are untouched.
func (s *CatalogService) DeactivateSubject(ctx context.Context, id int64) error {
	if _, err := s.subjects.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.subjects.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate subject")
	}
	_ = s.cache.Invalidate(ctx, subjectCacheKey(id))
	return nil
}

// ListGroups returns groups with pagination metadata.
func (s *CatalogService) ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.Group, *models.Pagination, error) {
	groups, total, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
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
	return groups, pagination, nil
}

// GetGroup returns a group with its subject detail, served from cache when
// possible.
func (s *CatalogService) GetGroup(ctx context.Context, id int64) (*models.GroupDetail, error) {
	var cached models.GroupDetail
	if hit, _ := s.cache.Get(ctx, groupCacheKey(id), &cached); hit {
		return &cached, nil
	}
	group, err := s.groups.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	_ = s.cache.Set(ctx, groupCacheKey(id), group, 0)
	return group, nil
}

// CreateGroup schedules a new group for a subject.
func (s *CatalogService) CreateGroup(ctx context.Context, req CreateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if !subject.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "subject is inactive")
	}
	exists, err := s.groups.ExistsByCode(ctx, req.Code, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate group code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "group code already in use")
	}
	group := &models.Group{
		Code:        req.Code,
		Name:        req.Name,
		SubjectID:   subject.ID,
		Semester:    req.Semester,
		Year:        req.Year,
		MaxStudents: req.MaxStudents,
		Active:      true,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	s.logger.Info("group created", zap.Int64("group_id", group.ID), zap.String("code", group.Code))
	return group, nil
}

// UpdateGroup modifies a group and drops its cached copy. Capacity may be
// lowered below the current active count; existing enrollments stand, only
// new ones are blocked.
func (s *CatalogService) UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	detail, err := s.groups.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	group := detail.Group
	group.Name = req.Name
	group.MaxStudents = req.MaxStudents
	group.Active = req.Active
	if err := s.groups.Update(ctx, &group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group")
	}
	_ = s.cache.Invalidate(ctx, groupCacheKey(id))
	return &group, nil
}

// DeactivateGroup closes a group for new enrollments.
func (s *CatalogService) DeactivateGroup(ctx context.Context, id int64) error {
	if _, err := s.groups.FindDetailByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if err := s.groups.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate group")
	}
	_ = s.cache.Invalidate(ctx, groupCacheKey(id))
	return nil
}
