package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicampus/credits-api/internal/models"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
)

type fakeSubjectStore struct {
	subjects []models.Subject
	subject  *models.Subject
	findErr  error
	exists   bool
	created  *models.Subject
	updated  *models.Subject
}

func (f *fakeSubjectStore) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	return f.subjects, len(f.subjects), nil
}

func (f *fakeSubjectStore) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.subject, nil
}

func (f *fakeSubjectStore) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	return f.exists, nil
}

func (f *fakeSubjectStore) Create(ctx context.Context, subject *models.Subject) error {
	subject.ID = 2
	f.created = subject
	return nil
}

func (f *fakeSubjectStore) Update(ctx context.Context, subject *models.Subject) error {
	f.updated = subject
	return nil
}

func (f *fakeSubjectStore) Deactivate(ctx context.Context, id int64) error {
	return nil
}

type fakeGroupStore struct {
	groups  []models.Group
	detail  *models.GroupDetail
	findErr error
	exists  bool
	created *models.Group
	updated *models.Group
}

func (f *fakeGroupStore) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	return f.groups, len(f.groups), nil
}

func (f *fakeGroupStore) FindDetailByID(ctx context.Context, id int64) (*models.GroupDetail, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.detail, nil
}

func (f *fakeGroupStore) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	return f.exists, nil
}

func (f *fakeGroupStore) Create(ctx context.Context, group *models.Group) error {
	group.ID = 3
	f.created = group
	return nil
}

func (f *fakeGroupStore) Update(ctx context.Context, group *models.Group) error {
	f.updated = group
	return nil
}

func (f *fakeGroupStore) Deactivate(ctx context.Context, id int64) error {
	return nil
}

type memoryCacheRepo struct {
	values map[string][]byte
	gets   int
	hits   int
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.gets++
	payload, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	m.hits++
	return json.Unmarshal(payload, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = payload
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func newCatalogFixture(cacheRepo CacheRepository) (*CatalogService, *fakeSubjectStore, *fakeGroupStore) {
	subjects := &fakeSubjectStore{subject: &models.Subject{
		ID:         2,
		Code:       "ALG",
		Name:       "Algebra",
		CreditCost: decimal.RequireFromString("5.00"),
		Active:     true,
	}}
	groups := &fakeGroupStore{detail: &models.GroupDetail{
		Group: models.Group{
			ID:          3,
			Code:        "ALG-01",
			Name:        "Algebra Morning",
			SubjectID:   2,
			MaxStudents: 30,
			Active:      true,
		},
		SubjectCode:   "ALG",
		SubjectName:   "Algebra",
		SubjectActive: true,
		CreditCost:    decimal.RequireFromString("5.00"),
	}}
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, cacheRepo != nil)
	return NewCatalogService(subjects, groups, cache, nil, nil), subjects, groups
}

func TestCatalogServiceCreateSubject(t *testing.T) {
	svc, subjects, _ := newCatalogFixture(nil)

	subject, err := svc.CreateSubject(context.Background(), CreateSubjectRequest{
		Code:       "GEO",
		Name:       "Geometry",
		CreditCost: decimal.RequireFromString("4.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), subject.ID)
	assert.True(t, subject.Active)
	assert.NotNil(t, subjects.created)
}

func TestCatalogServiceCreateSubjectDuplicateCode(t *testing.T) {
	svc, subjects, _ := newCatalogFixture(nil)
	subjects.exists = true

	_, err := svc.CreateSubject(context.Background(), CreateSubjectRequest{
		Code:       "ALG",
		Name:       "Algebra",
		CreditCost: decimal.RequireFromString("5.00"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceCreateSubjectRejectsNonPositiveCost(t *testing.T) {
	svc, _, _ := newCatalogFixture(nil)

	_, err := svc.CreateSubject(context.Background(), CreateSubjectRequest{
		Code:       "FREE",
		Name:       "Free Course",
		CreditCost: decimal.RequireFromString("-1"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceCreateGroupInactiveSubject(t *testing.T) {
	svc, subjects, _ := newCatalogFixture(nil)
	subjects.subject.Active = false

	_, err := svc.CreateGroup(context.Background(), CreateGroupRequest{
		Code:        "ALG-02",
		Name:        "Algebra Evening",
		SubjectID:   2,
		Semester:    1,
		Year:        2026,
		MaxStudents: 30,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRequest.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceGetGroupNotFound(t *testing.T) {
	svc, _, groups := newCatalogFixture(nil)
	groups.findErr = sql.ErrNoRows

	_, err := svc.GetGroup(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceGetGroupUsesCache(t *testing.T) {
	cacheRepo := newMemoryCacheRepo()
	svc, _, groups := newCatalogFixture(cacheRepo)

	first, err := svc.GetGroup(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "ALG-01", first.Code)

	// The second read must come from cache, not the store.
	groups.findErr = sql.ErrConnDone
	second, err := svc.GetGroup(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "ALG-01", second.Code)
	assert.Equal(t, 1, cacheRepo.hits)
}

func TestCatalogServiceUpdateGroupInvalidatesCache(t *testing.T) {
	cacheRepo := newMemoryCacheRepo()
	svc, _, _ := newCatalogFixture(cacheRepo)

	_, err := svc.GetGroup(context.Background(), 3)
	require.NoError(t, err)
	assert.NotEmpty(t, cacheRepo.values)

	_, err = svc.UpdateGroup(context.Background(), 3, UpdateGroupRequest{Name: "Algebra Morning", MaxStudents: 25, Active: true})
	require.NoError(t, err)
	assert.Empty(t, cacheRepo.values)
}
