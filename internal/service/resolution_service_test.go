package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enochteo/web103-finalproject/internal/models"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

func newTestResolutionService(repo *fakeRequestRepo) *ResolutionService {
	return NewResolutionService(repo, nil, nil, nil, nil, nil)
}

func TestResolutionServiceRecord(t *testing.T) {
	repo := newFakeRequestRepo(inProgressRequest(1))
	svc := newTestResolutionService(repo)

	resolution, err := svc.Record(context.Background(), technician, 1, RecordResolutionRequest{
		AdminNotes: strPtr("Replaced the washer"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resolution.RequestID)
	assert.False(t, resolution.ResolvedAt.IsZero())

	detail, err := repo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, detail.Status)
}

func TestResolutionServiceRecordTwiceConflicts(t *testing.T) {
	repo := newFakeRequestRepo(inProgressRequest(1))
	svc := newTestResolutionService(repo)

	_, err := svc.Record(context.Background(), technician, 1, RecordResolutionRequest{})
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), technician, 1, RecordResolutionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestResolutionServiceRecordRequiresInProgress(t *testing.T) {
	detail := pendingRequest(1)
	detail.AssignedTo = int64Ptr(technician.ID)
	svc := newTestResolutionService(newFakeRequestRepo(detail))

	_, err := svc.Record(context.Background(), technician, 1, RecordResolutionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestResolutionServiceRecordAdminForbidden(t *testing.T) {
	svc := newTestResolutionService(newFakeRequestRepo(inProgressRequest(1)))

	_, err := svc.Record(context.Background(), admin, 1, RecordResolutionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestResolutionServiceRecordNonAssignee(t *testing.T) {
	svc := newTestResolutionService(newFakeRequestRepo(inProgressRequest(1)))

	_, err := svc.Record(context.Background(), otherTech, 1, RecordResolutionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestResolutionServiceRecordRequestMissing(t *testing.T) {
	svc := newTestResolutionService(newFakeRequestRepo())

	_, err := svc.Record(context.Background(), technician, 404, RecordResolutionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestResolutionServiceGet(t *testing.T) {
	repo := newFakeRequestRepo(inProgressRequest(1))
	svc := newTestResolutionService(repo)

	_, err := svc.Record(context.Background(), technician, 1, RecordResolutionRequest{
		AdminNotes: strPtr("done"),
	})
	require.NoError(t, err)

	resolution, err := svc.Get(context.Background(), nil, 1)
	require.NoError(t, err)
	require.NotNil(t, resolution.AdminNotes)
	assert.Equal(t, "done", *resolution.AdminNotes)
}

func TestResolutionServiceList(t *testing.T) {
	repo := newFakeRequestRepo(inProgressRequest(1), inProgressRequest(2), pendingRequest(3))
	svc := newTestResolutionService(repo)

	_, err := svc.Record(context.Background(), technician, 1, RecordResolutionRequest{})
	require.NoError(t, err)
	_, err = svc.Record(context.Background(), technician, 2, RecordResolutionRequest{})
	require.NoError(t, err)

	resolutions, err := svc.List(context.Background(), nil, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, resolutions, 2)
}

func TestResolutionServiceListRequiresIDs(t *testing.T) {
	svc := newTestResolutionService(newFakeRequestRepo())

	_, err := svc.List(context.Background(), nil, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResolutionServiceListEmptyAfterDelete(t *testing.T) {
	repo := newFakeRequestRepo(inProgressRequest(1))
	svc := newTestResolutionService(repo)

	_, err := svc.Record(context.Background(), technician, 1, RecordResolutionRequest{})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(context.Background(), 1))

	resolutions, err := svc.List(context.Background(), admin, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, resolutions)
}

func TestResolutionServiceGetMissing(t *testing.T) {
	svc := newTestResolutionService(newFakeRequestRepo(pendingRequest(1)))

	_, err := svc.Get(context.Background(), nil, 1)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Get(context.Background(), nil, 42)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
