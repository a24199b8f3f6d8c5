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
	"github.com/Enochteo/web103-finalproject/internal/repository"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

type requestRepository interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error)
	FindByID(ctx context.Context, id int64) (*models.RequestDetail, error)
	Create(ctx context.Context, request *models.Request) error
	UpdateContent(ctx context.Context, request *models.Request) error
	Assign(ctx context.Context, id, technicianID int64) error
	TransitionStatus(ctx context.Context, id int64, next models.RequestStatus, check func(current models.Request) error) (*models.Request, error)
	Resolve(ctx context.Context, requestID int64, resolution *models.Resolution, check func(current models.Request) error) error
	Delete(ctx context.Context, id int64) error
}

type userLookup interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type categoryLookup interface {
	FindByID(ctx context.Context, id int64) (*models.Category, error)
}

// CreateRequestRequest is the submitter payload. The owning user id is never
// part of it; it always comes from the authenticated principal.
type CreateRequestRequest struct {
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description" validate:"required"`
	Location    string         `json:"location" validate:"required"`
	Urgency     models.Urgency `json:"urgency" validate:"required,oneof=LOW MEDIUM HIGH"`
	CategoryID  *int64         `json:"category_id"`
	PhotoURL    *string        `json:"photo_url"`
}

// UpdateRequestContentRequest carries the partial content-field update. Nil
// fields are left untouched.
type UpdateRequestContentRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Location    *string         `json:"location"`
	Urgency     *models.Urgency `json:"urgency" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	CategoryID  *int64          `json:"category_id"`
	PhotoURL    *string         `json:"photo_url"`
}

// requestCacheKey formats the cache key for a single request.
func requestCacheKey(id int64) string {
	return fmt.Sprintf("request:%d", id)
}

// RequestService implements the request lifecycle: creation, listing,
// content mutation, assignment and status transitions. Every operation
// authorizes the explicit principal before touching the store.
type RequestService struct {
	repo       requestRepository
	users      userLookup
	categories categoryLookup
	validator  *validator.Validate
	logger     *zap.Logger
	cache      *CacheService
	audit      *AuditService
}

// NewRequestService constructs the request service.
func NewRequestService(repo requestRepository, users userLookup, categories categoryLookup, validate *validator.Validate, logger *zap.Logger, cache *CacheService, audit *AuditService) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{repo: repo, users: users, categories: categories, validator: validate, logger: logger, cache: cache, audit: audit}
}

// List returns requests matching the filter plus pagination metadata. The
// engine applies exactly the filters it is given; role scoping is the
// caller's responsibility (e.g. the technician dashboard pre-fills
// assigned_to).
func (s *RequestService) List(ctx context.Context, principal *models.Principal, filter models.RequestFilter) ([]models.RequestDetail, *models.Pagination, error) {
	if err := authz.Authorize(principal, authz.ActionListRequests, nil); err != nil {
		return nil, nil, err
	}

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}

	pageSize := filter.PageSize
	if pageSize > 100 {
		pageSize = 100
	}
	return requests, models.NewPagination(filter.Page, pageSize, total), nil
}

// Get returns a single request by id.
func (s *RequestService) Get(ctx context.Context, principal *models.Principal, id int64) (*models.RequestDetail, error) {
	if err := authz.Authorize(principal, authz.ActionReadRequest, nil); err != nil {
		return nil, err
	}

	var cached models.RequestDetail
	if s.cache.Get(ctx, requestCacheKey(id), &cached) {
		return &cached, nil
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	s.cache.Set(ctx, requestCacheKey(id), detail)
	return detail, nil
}

// Create submits a new request owned by the principal. Status starts at
// PENDING with no assignee regardless of the payload.
func (s *RequestService) Create(ctx context.Context, principal *models.Principal, req CreateRequestRequest) (*models.Request, error) {
	if err := authz.Authorize(principal, authz.ActionCreateRequest, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	request := &models.Request{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Urgency:     req.Urgency,
		Status:      models.StatusPending,
		UserID:      principal.ID,
		CategoryID:  req.CategoryID,
		PhotoURL:    req.PhotoURL,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		// The pre-check can race a concurrent category delete.
		if repository.IsForeignKeyViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrInvalidReference, "category does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.audit.Record(principal, models.AuditActionRequestCreate, "request", fmt.Sprintf("%d", request.ID), request)
	return request, nil
}

// UpdateContent applies a partial edit to the content fields. Only the
// owner or an admin may edit; status and ownership are untouchable here.
func (s *RequestService) UpdateContent(ctx context.Context, principal *models.Principal, id int64, req UpdateRequestContentRequest) (*models.Request, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(principal, authz.ActionUpdateRequestContent, &detail.Request); err != nil {
		return nil, err
	}

	request := detail.Request
	if req.Title != nil {
		request.Title = *req.Title
	}
	if req.Description != nil {
		request.Description = *req.Description
	}
	if req.Location != nil {
		request.Location = *req.Location
	}
	if req.Urgency != nil {
		request.Urgency = *req.Urgency
	}
	if req.CategoryID != nil {
		if err := s.checkCategory(ctx, req.CategoryID); err != nil {
			return nil, err
		}
		request.CategoryID = req.CategoryID
	}
	if req.PhotoURL != nil {
		request.PhotoURL = req.PhotoURL
	}
	if request.Title == "" || request.Description == "" || request.Location == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title, description and location must not be empty")
	}

	if err := s.repo.UpdateContent(ctx, &request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}

	s.cache.Invalidate(ctx, requestCacheKey(id))
	s.audit.Record(principal, models.AuditActionRequestUpdate, "request", fmt.Sprintf("%d", id), req)
	return &request, nil
}

// Delete removes a request and its resolution; owner or admin only.
func (s *RequestService) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	detail, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(principal, authz.ActionDeleteRequest, &detail.Request); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}

	s.cache.Invalidate(ctx, requestCacheKey(id))
	s.audit.Record(principal, models.AuditActionRequestDelete, "request", fmt.Sprintf("%d", id), nil)
	return nil
}

// Assign sets the assigned technician; admin only. Assignment does not
// change the request status.
func (s *RequestService) Assign(ctx context.Context, principal *models.Principal, id, technicianID int64) (*models.Request, error) {
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(principal, authz.ActionAssignRequest, &detail.Request); err != nil {
		return nil, err
	}
	if detail.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot assign a %s request", detail.Status))
	}

	technician, err := s.users.FindByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidReference, "assignee does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
	}
	if technician.Role != models.RoleTechnician {
		return nil, appErrors.Clone(appErrors.ErrInvalidReference, "assignee is not a technician")
	}

	if err := s.repo.Assign(ctx, id, technicianID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign request")
	}

	request := detail.Request
	request.AssignedTo = &technicianID

	s.cache.Invalidate(ctx, requestCacheKey(id))
	s.audit.Record(principal, models.AuditActionRequestAssign, "request", fmt.Sprintf("%d", id), map[string]interface{}{"assigned_to": technicianID})
	return &request, nil
}

// UpdateStatus moves the request through its lifecycle. The transition is
// validated against the committed row inside the store transaction, so
// concurrent callers serialize on the request. Moving into RESOLVED records
// a resolution atomically with the status write.
func (s *RequestService) UpdateStatus(ctx context.Context, principal *models.Principal, id int64, next models.RequestStatus) (*models.Request, error) {
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", next))
	}

	check := func(current models.Request) error {
		if err := authz.Authorize(principal, authz.ActionUpdateStatus, &current); err != nil {
			return err
		}
		if current.Status == next {
			return errStatusUnchanged
		}
		if !models.CanTransition(current.Status, next) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move %s to %s", current.Status, next))
		}
		if next == models.StatusCancelled && principal.Role != models.RoleAdmin {
			return appErrors.Clone(appErrors.ErrForbidden, authz.ReasonRoleForbidden)
		}
		if next == models.StatusInProgress && current.AssignedTo == nil && principal.Role != models.RoleAdmin {
			return appErrors.Clone(appErrors.ErrValidation, "request has no assigned technician")
		}
		return nil
	}

	var updated *models.Request
	var err error
	if next == models.StatusResolved {
		resolution := &models.Resolution{}
		err = s.repo.Resolve(ctx, id, resolution, check)
		if err == nil {
			detail, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			updated = &detail.Request
		}
	} else {
		updated, err = s.repo.TransitionStatus(ctx, id, next, check)
	}

	if err != nil {
		if errors.Is(err, errStatusUnchanged) {
			// Idempotent same-state set: succeed without writing.
			detail, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return &detail.Request, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	s.cache.Invalidate(ctx, requestCacheKey(id))
	s.audit.Record(principal, models.AuditActionStatusChange, "request", fmt.Sprintf("%d", id), map[string]interface{}{"status": next})
	return updated, nil
}

var errStatusUnchanged = errors.New("status unchanged")

func (s *RequestService) load(ctx context.Context, id int64) (*models.RequestDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return detail, nil
}

func (s *RequestService) checkCategory(ctx context.Context, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	if _, err := s.categories.FindByID(ctx, *categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidReference, "category does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	return nil
}
