package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Enochteo/web103-finalproject/internal/authz"
	"github.com/Enochteo/web103-finalproject/internal/models"
	"github.com/Enochteo/web103-finalproject/pkg/config"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
	"github.com/Enochteo/web103-finalproject/pkg/export"
)

// ExportFormat selects the export output type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

var exportHeaders = []string{"ID", "Title", "Location", "Urgency", "Status", "Category", "Submitter", "Assignee", "Created", "Resolved"}

// ExportResult carries the rendered document and its HTTP metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

type exportRequestLister interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error)
	ListResolutions(ctx context.Context, requestIDs []int64) ([]models.Resolution, error)
}

// ExportService renders request listings as downloadable CSV or PDF
// documents; admin only.
type ExportService struct {
	repo   exportRequestLister
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	config config.ExportsConfig
	logger *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(repo exportRequestLister, cfg config.ExportsConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		config: cfg,
		logger: logger,
	}
}

// Export renders the filtered request listing in the requested format.
func (s *ExportService) Export(ctx context.Context, principal *models.Principal, filter models.RequestFilter, format ExportFormat) (*ExportResult, error) {
	if err := authz.Authorize(principal, authz.ActionExportRequests, nil); err != nil {
		return nil, err
	}
	if !s.config.Enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export format %q", format))
	}

	filter.Page = 1
	filter.PageSize = s.config.MaxRows
	filter.MaxPageSize = s.config.MaxRows
	requests, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requests for export")
	}

	resolvedAt, err := s.resolutionDates(ctx, requests)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolutions for export")
	}

	dataset := export.Dataset{Headers: exportHeaders, Rows: make([]map[string]string, 0, len(requests))}
	for _, r := range requests {
		resolved := ""
		if at, ok := resolvedAt[r.ID]; ok {
			resolved = at.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":        strconv.FormatInt(r.ID, 10),
			"Title":     r.Title,
			"Location":  r.Location,
			"Urgency":   string(r.Urgency),
			"Status":    string(r.Status),
			"Category":  deref(r.CategoryName),
			"Submitter": deref(r.SubmitterName),
			"Assignee":  deref(r.AssigneeName),
			"Created":   r.CreatedAt.UTC().Format(time.RFC3339),
			"Resolved":  resolved,
		})
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case FormatPDF:
		content, err := s.pdf.Render(dataset, "Maintenance Requests")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: fmt.Sprintf("requests-%s.pdf", stamp)}, nil
	default:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: fmt.Sprintf("requests-%s.csv", stamp)}, nil
	}
}

// resolutionDates batch-loads resolution timestamps for the resolved
// rows in the listing.
func (s *ExportService) resolutionDates(ctx context.Context, requests []models.RequestDetail) (map[int64]time.Time, error) {
	ids := make([]int64, 0, len(requests))
	for _, r := range requests {
		if r.Status == models.StatusResolved {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	resolutions, err := s.repo.ListResolutions(ctx, ids)
	if err != nil {
		return nil, err
	}
	dates := make(map[int64]time.Time, len(resolutions))
	for _, res := range resolutions {
		dates[res.RequestID] = res.ResolvedAt
	}
	return dates, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
