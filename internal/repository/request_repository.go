package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Enochteo/web103-finalproject/internal/models"
)

// RequestRepository manages persistence for maintenance requests and their
// resolutions. Status transitions and resolution inserts run inside a single
// transaction with the request row locked.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs a RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestDetailColumns = `r.id, r.title, r.description, r.location, r.urgency, r.status, r.user_id, r.assigned_to, r.category_id, r.photo_url, r.created_at,
        su.username AS submitter_name, tu.username AS assignee_name, c.name AS category_name`

const requestDetailJoins = `FROM requests r
        LEFT JOIN users su ON su.id = r.user_id
        LEFT JOIN users tu ON tu.id = r.assigned_to
        LEFT JOIN categories c ON c.id = r.category_id`

// List returns requests matching the filter plus the filtered total before
// pagination. Results are ordered deterministically: the requested sort key
// first, then id ascending as a tie-break.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Urgency != nil {
		conditions = append(conditions, fmt.Sprintf("r.urgency = $%d", len(args)+1))
		args = append(args, *filter.Urgency)
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("r.category_id = $%d", len(args)+1))
		args = append(args, *filter.CategoryID)
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)+1))
		args = append(args, *filter.UserID)
	}
	if filter.AssignedTo != nil {
		conditions = append(conditions, fmt.Sprintf("r.assigned_to = $%d", len(args)+1))
		args = append(args, *filter.AssignedTo)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(r.title) LIKE $%d OR LOWER(r.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"id":          "r.id",
		"created_at":  "r.created_at",
		"urgency":     "r.urgency",
		"status":      "r.status",
		"category_id": "r.category_id",
		"assigned_to": "r.assigned_to",
	}
	column := "r.created_at"
	if filter.SortBy != "" {
		if mapped, ok := allowedSorts[filter.SortBy]; ok {
			column = mapped
		} else {
			column = "r.id"
		}
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	ceiling := filter.MaxPageSize
	if ceiling <= 0 {
		ceiling = 100
	}
	if size > ceiling {
		size = ceiling
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s
        %s WHERE %s ORDER BY %s %s, r.id ASC LIMIT %d OFFSET %d`,
		requestDetailColumns, requestDetailJoins, where, column, order, size, offset)

	var requests []models.RequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(r.id) %s WHERE %s", requestDetailJoins, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

// FindByID fetches a request with joined names by ID.
func (r *RequestRepository) FindByID(ctx context.Context, id int64) (*models.RequestDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.id = $1`, requestDetailColumns, requestDetailJoins)
	var detail models.RequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new request. The caller is expected to have forced
// status PENDING, a nil assignee and the submitter's user_id already.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO requests (title, description, location, urgency, status, user_id, assigned_to, category_id, photo_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		request.Title, request.Description, request.Location, request.Urgency,
		request.Status, request.UserID, request.AssignedTo, request.CategoryID,
		request.PhotoURL, request.CreatedAt,
	).Scan(&request.ID); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// UpdateContent persists the mutable content fields of a request. Status,
// ownership and creation time are never touched here.
func (r *RequestRepository) UpdateContent(ctx context.Context, request *models.Request) error {
	const query = `UPDATE requests SET title = :title, description = :description, location = :location,
        urgency = :urgency, category_id = :category_id, photo_url = :photo_url WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("update request content: %w", err)
	}
	return nil
}

// Assign sets the assigned technician. Assignment never changes status.
func (r *RequestRepository) Assign(ctx context.Context, id, technicianID int64) error {
	const query = `UPDATE requests SET assigned_to = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, technicianID)
	if err != nil {
		return fmt.Errorf("assign request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionStatus moves a request to the next status inside a transaction.
// The current row is locked, the check callback validates the transition
// against the committed state, and the write only happens when it passes.
// Setting the current status again commits without a write.
func (r *RequestRepository) TransitionStatus(ctx context.Context, id int64, next models.RequestStatus, check func(current models.Request) error) (*models.Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status transition: %w", err)
	}

	current, err := lockRequest(ctx, tx, id)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	if check != nil {
		if err := check(*current); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
	}

	if current.Status != next {
		if _, err := tx.ExecContext(ctx, `UPDATE requests SET status = $2 WHERE id = $1`, id, next); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("update request status: %w", err)
		}
		current.Status = next
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status transition: %w", err)
	}
	return current, nil
}

// Resolve inserts a resolution and moves the request to RESOLVED as one
// atomic unit. Either both writes commit or neither does.
func (r *RequestRepository) Resolve(ctx context.Context, requestID int64, resolution *models.Resolution, check func(current models.Request) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve: %w", err)
	}

	current, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if check != nil {
		if err := check(*current); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}

	if resolution.ResolvedAt.IsZero() {
		resolution.ResolvedAt = time.Now().UTC()
	}
	resolution.RequestID = requestID
	const insert = `INSERT INTO resolutions (request_id, admin_notes, photo_url, resolved_at)
        VALUES ($1, $2, $3, $4) RETURNING id`
	if err := tx.QueryRowContext(ctx, insert,
		resolution.RequestID, resolution.AdminNotes, resolution.TechnicianPhotoURL, resolution.ResolvedAt,
	).Scan(&resolution.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert resolution: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE requests SET status = $2 WHERE id = $1`, requestID, models.StatusResolved); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("mark request resolved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolve: %w", err)
	}
	return nil
}

// Delete removes a request along with its resolution and category links in
// one transaction.
func (r *RequestRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete request: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resolutions WHERE request_id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete resolution: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM request_categories WHERE request_id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete category links: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete request: %w", err)
	}
	return nil
}

// FindResolution returns the resolution of a request, if any.
func (r *RequestRepository) FindResolution(ctx context.Context, requestID int64) (*models.Resolution, error) {
	const query = `SELECT id, request_id, admin_notes, photo_url, resolved_at FROM resolutions WHERE request_id = $1 LIMIT 1`
	var resolution models.Resolution
	if err := r.db.GetContext(ctx, &resolution, query, requestID); err != nil {
		return nil, err
	}
	return &resolution, nil
}

// ListResolutions returns resolutions for the given request IDs.
func (r *RequestRepository) ListResolutions(ctx context.Context, requestIDs []int64) ([]models.Resolution, error) {
	if len(requestIDs) == 0 {
		return []models.Resolution{}, nil
	}
	placeholders := make([]string, len(requestIDs))
	args := make([]interface{}, len(requestIDs))
	for i, id := range requestIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, request_id, admin_notes, photo_url, resolved_at
        FROM resolutions WHERE request_id IN (%s) ORDER BY request_id ASC`, strings.Join(placeholders, ","))
	var resolutions []models.Resolution
	if err := r.db.SelectContext(ctx, &resolutions, query, args...); err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}
	return resolutions, nil
}

func lockRequest(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Request, error) {
	const query = `SELECT id, title, description, location, urgency, status, user_id, assigned_to, category_id, photo_url, created_at
        FROM requests WHERE id = $1 FOR UPDATE`
	var request models.Request
	if err := tx.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// IsUniqueViolation reports whether the error is a Postgres unique-constraint
// violation, e.g. a second resolution for the same request.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether the error is a Postgres foreign-key
// violation, e.g. referencing a user or category that does not exist.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
