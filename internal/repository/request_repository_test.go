package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enochteo/web103-finalproject/internal/models"
)

func newRequestMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "location", "urgency", "status", "user_id",
		"assigned_to", "category_id", "photo_url", "created_at",
		"submitter_name", "assignee_name", "category_name",
	}).AddRow(int64(1), "Leak", "ceiling drips", "Hall 3", "HIGH", "PENDING", int64(5),
		nil, nil, nil, time.Now(), "student", nil, nil)
}

func lockedRow(status models.RequestStatus, assignedTo *int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "location", "urgency", "status", "user_id",
		"assigned_to", "category_id", "photo_url", "created_at",
	}).AddRow(int64(1), "Leak", "ceiling drips", "Hall 3", "HIGH", string(status), int64(5),
		assignedTo, nil, nil, time.Now())
}

func TestRequestRepositoryListDefaults(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM requests r(.+)WHERE 1=1 ORDER BY r\.created_at DESC, r\.id ASC LIMIT 20 OFFSET 0`).
		WillReturnRows(requestRows())
	mock.ExpectQuery(`SELECT COUNT\(r\.id\) FROM requests r(.+)WHERE 1=1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	status := models.StatusPending
	mock.ExpectQuery(`SELECT (.+) FROM requests r(.+)r\.status = \$1 AND \(LOWER\(r\.title\) LIKE \$2 OR LOWER\(r\.description\) LIKE \$2\) ORDER BY r\.urgency ASC, r\.id ASC LIMIT 10 OFFSET 10`).
		WithArgs(status, "%leak%").
		WillReturnRows(requestRows())
	mock.ExpectQuery(`SELECT COUNT\(r\.id\)`).
		WithArgs(status, "%leak%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	_, total, err := repo.List(context.Background(), models.RequestFilter{
		Status:    &status,
		Search:    "Leak",
		SortBy:    "urgency",
		SortOrder: "asc",
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListPageSizeCeiling(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`LIMIT 100 OFFSET 0`).
		WillReturnRows(requestRows())
	mock.ExpectQuery(`SELECT COUNT\(r\.id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.RequestFilter{PageSize: 5000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListRaisedCeiling(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`LIMIT 5000 OFFSET 0`).
		WillReturnRows(requestRows())
	mock.ExpectQuery(`SELECT COUNT\(r\.id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.RequestFilter{PageSize: 5000, MaxPageSize: 5000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListUnknownSortFallsBackToID(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`ORDER BY r\.id DESC, r\.id ASC LIMIT 20 OFFSET 0`).
		WillReturnRows(requestRows())
	mock.ExpectQuery(`SELECT COUNT\(r\.id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.RequestFilter{SortBy: "photo_url"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`INSERT INTO requests`).
		WithArgs("Leak", "ceiling drips", "Hall 3", models.UrgencyHigh, models.StatusPending,
			int64(5), nil, nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	request := &models.Request{
		Title:       "Leak",
		Description: "ceiling drips",
		Location:    "Hall 3",
		Urgency:     models.UrgencyHigh,
		Status:      models.StatusPending,
		UserID:      5,
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.Equal(t, int64(42), request.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(lockedRow(models.StatusPending, nil))
	mock.ExpectExec(`UPDATE requests SET status = \$2 WHERE id = \$1`).
		WithArgs(int64(1), models.StatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.TransitionStatus(context.Background(), 1, models.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryTransitionStatusNoop(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(lockedRow(models.StatusPending, nil))
	mock.ExpectCommit()

	updated, err := repo.TransitionStatus(context.Background(), 1, models.StatusPending, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryTransitionStatusCheckRejected(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(lockedRow(models.StatusResolved, nil))
	mock.ExpectRollback()

	rejected := errors.New("terminal state")
	_, err := repo.TransitionStatus(context.Background(), 1, models.StatusInProgress, func(current models.Request) error {
		require.Equal(t, models.StatusResolved, current.Status)
		return rejected
	})
	require.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryResolve(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	assignee := int64(7)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(lockedRow(models.StatusInProgress, &assignee))
	mock.ExpectQuery(`INSERT INTO resolutions`).
		WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec(`UPDATE requests SET status = \$2 WHERE id = \$1`).
		WithArgs(int64(1), models.StatusResolved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	notes := "fixed"
	resolution := &models.Resolution{AdminNotes: &notes}
	require.NoError(t, repo.Resolve(context.Background(), 1, resolution, nil))
	assert.Equal(t, int64(9), resolution.ID)
	assert.Equal(t, int64(1), resolution.RequestID)
	assert.False(t, resolution.ResolvedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDeleteCascades(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM resolutions WHERE request_id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM request_categories WHERE request_id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM requests WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM resolutions`).WithArgs(int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM request_categories`).WithArgs(int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM requests`).WithArgs(int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListResolutions(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`FROM resolutions WHERE request_id IN \(\$1,\$2\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "admin_notes", "photo_url", "resolved_at"}).
			AddRow(int64(9), int64(1), "fixed", nil, time.Now()))

	resolutions, err := repo.ListResolutions(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Len(t, resolutions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListResolutionsEmpty(t *testing.T) {
	db, _, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	resolutions, err := repo.ListResolutions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resolutions)
}
