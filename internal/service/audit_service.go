package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Enochteo/web103-finalproject/internal/models"
	"github.com/Enochteo/web103-finalproject/pkg/config"
	"github.com/Enochteo/web103-finalproject/pkg/jobs"
)

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditService writes audit trail records off the request path through an
// in-memory worker queue. Recording is best effort: failures are logged,
// never surfaced to the caller.
type AuditService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the audit writer. A nil return value is valid
// and disables auditing; every method is nil-safe.
func NewAuditService(repo auditRepository, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if !cfg.Enabled || repo == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return nil
		}
		return repo.Create(ctx, entry)
	}

	queue := jobs.NewQueue("audit", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})

	return &AuditService{queue: queue, logger: logger}
}

// Start launches the background writer.
func (s *AuditService) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the writer.
func (s *AuditService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Record enqueues an audit entry for the given actor and action.
func (s *AuditService) Record(actor *models.Principal, action, resource, resourceID string, payload interface{}) {
	if s == nil {
		return
	}

	entry := &models.AuditLog{Action: action, Resource: resource}
	if actor != nil {
		id := actor.ID
		entry.UserID = &id
	}
	if resourceID != "" {
		rid := resourceID
		entry.ResourceID = &rid
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.NewValues = raw
		}
	}

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: action, Payload: entry}); err != nil {
		s.logger.Warn("audit enqueue failed", zap.String("action", action), zap.Error(err))
	}
}
