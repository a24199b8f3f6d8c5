package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Enochteo/web103-finalproject/internal/authz"
	"github.com/Enochteo/web103-finalproject/internal/models"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

const categoryCacheKey = "categories"

type categoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	FindByID(ctx context.Context, id int64) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id int64) error
}

// CreateCategoryRequest holds the admin payload for adding a category.
type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required"`
}

// CategoryService handles the category catalogue.
type CategoryService struct {
	repo      categoryRepository
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
	audit     *AuditService
}

// NewCategoryService constructs the category service.
func NewCategoryService(repo categoryRepository, validate *validator.Validate, logger *zap.Logger, cache *CacheService, audit *AuditService) *CategoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, validator: validate, logger: logger, cache: cache, audit: audit}
}

// List returns all categories. Reads are public.
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	var cached []models.Category
	if s.cache.Get(ctx, categoryCacheKey, &cached) {
		return cached, nil
	}

	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	s.cache.Set(ctx, categoryCacheKey, categories)
	return categories, nil
}

// Create adds a new category; admin only.
func (s *CategoryService) Create(ctx context.Context, principal *models.Principal, req CreateCategoryRequest) (*models.Category, error) {
	if err := authz.Authorize(principal, authz.ActionManageCategory, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	category := &models.Category{Name: req.Name}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}

	s.cache.Invalidate(ctx, categoryCacheKey)
	s.audit.Record(principal, models.AuditActionCategoryCreate, "category", fmt.Sprintf("%d", category.ID), category)
	return category, nil
}

// Delete removes a category; admin only. Requests referencing it keep
// existing with their category cleared.
func (s *CategoryService) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	if err := authz.Authorize(principal, authz.ActionManageCategory, nil); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}

	s.cache.Invalidate(ctx, categoryCacheKey)
	s.cache.Invalidate(ctx, "request:*")
	s.audit.Record(principal, models.AuditActionCategoryDelete, "category", fmt.Sprintf("%d", id), nil)
	return nil
}
