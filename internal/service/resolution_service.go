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

type resolutionRepository interface {
	FindByID(ctx context.Context, id int64) (*models.RequestDetail, error)
	Resolve(ctx context.Context, requestID int64, resolution *models.Resolution, check func(current models.Request) error) error
	FindResolution(ctx context.Context, requestID int64) (*models.Resolution, error)
	ListResolutions(ctx context.Context, requestIDs []int64) ([]models.Resolution, error)
}

// RecordResolutionRequest is the technician payload for closing out a
// request.
type RecordResolutionRequest struct {
	AdminNotes         *string `json:"admin_notes"`
	TechnicianPhotoURL *string `json:"technician_photo_url"`
}

// ResolutionService records and serves resolution evidence. Recording is
// coupled to the IN_PROGRESS -> RESOLVED transition and happens in one
// store transaction with it.
type ResolutionService struct {
	repo      resolutionRepository
	unique    func(error) bool
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
	audit     *AuditService
}

// NewResolutionService constructs the resolution service. unique reports
// whether a store error is a duplicate-key violation.
func NewResolutionService(repo resolutionRepository, unique func(error) bool, validate *validator.Validate, logger *zap.Logger, cache *CacheService, audit *AuditService) *ResolutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionService{repo: repo, unique: unique, validator: validate, logger: logger, cache: cache, audit: audit}
}

// Record creates the resolution for a request and moves it to RESOLVED
// atomically. Only the assigned technician may record one, the request must
// be IN_PROGRESS, and a second attempt conflicts.
func (s *ResolutionService) Record(ctx context.Context, principal *models.Principal, requestID int64, req RecordResolutionRequest) (*models.Resolution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}

	resolution := &models.Resolution{
		AdminNotes:         req.AdminNotes,
		TechnicianPhotoURL: req.TechnicianPhotoURL,
	}

	check := func(current models.Request) error {
		if err := authz.Authorize(principal, authz.ActionCreateResolution, &current); err != nil {
			return err
		}
		// An already resolved request is a duplicate recording, not a
		// transition problem.
		if current.Status == models.StatusResolved {
			return appErrors.Clone(appErrors.ErrConflict, "request already has a resolution")
		}
		if current.Status != models.StatusInProgress {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot resolve a %s request", current.Status))
		}
		return nil
	}

	if err := s.repo.Resolve(ctx, requestID, resolution, check); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if s.unique != nil && s.unique(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request already has a resolution")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record resolution")
	}

	s.cache.Invalidate(ctx, requestCacheKey(requestID))
	s.audit.Record(principal, models.AuditActionResolutionCreate, "request", fmt.Sprintf("%d", requestID), resolution)
	return resolution, nil
}

// Get returns the resolution attached to a request, if any. Reads are
// public, matching request reads.
func (s *ResolutionService) Get(ctx context.Context, principal *models.Principal, requestID int64) (*models.Resolution, error) {
	if err := authz.Authorize(principal, authz.ActionReadRequest, nil); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByID(ctx, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	resolution, err := s.repo.FindResolution(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request has no resolution")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolution")
	}
	return resolution, nil
}

// List returns the resolutions for the given request IDs. Requests without
// a resolution, including deleted ones, simply contribute nothing to the
// result.
func (s *ResolutionService) List(ctx context.Context, principal *models.Principal, requestIDs []int64) ([]models.Resolution, error) {
	if err := authz.Authorize(principal, authz.ActionListRequests, nil); err != nil {
		return nil, err
	}
	if len(requestIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one request id is required")
	}

	resolutions, err := s.repo.ListResolutions(ctx, requestIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolutions")
	}
	if resolutions == nil {
		resolutions = []models.Resolution{}
	}
	return resolutions, nil
}
