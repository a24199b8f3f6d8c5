package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enochteo/web103-finalproject/internal/models"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

func ptr(v int64) *int64 { return &v }

func TestAuthorizePublicReads(t *testing.T) {
	require.NoError(t, Authorize(nil, ActionListRequests, nil))
	require.NoError(t, Authorize(nil, ActionReadRequest, &models.Request{ID: 1}))
}

func TestAuthorizeAnonymousDenied(t *testing.T) {
	err := Authorize(nil, ActionCreateRequest, nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	assert.Equal(t, ReasonUnauthenticated, appErr.Message)
}

func TestAuthorizeContentMutation(t *testing.T) {
	target := &models.Request{ID: 10, UserID: 5}
	owner := &models.Principal{ID: 5, Role: models.RoleStudent}
	stranger := &models.Principal{ID: 6, Role: models.RoleStudent}
	admin := &models.Principal{ID: 1, Role: models.RoleAdmin}

	require.NoError(t, Authorize(owner, ActionUpdateRequestContent, target))
	require.NoError(t, Authorize(admin, ActionDeleteRequest, target))

	err := Authorize(stranger, ActionUpdateRequestContent, target)
	require.Error(t, err)
	assert.Equal(t, ReasonNotOwner, appErrors.FromError(err).Message)
}

func TestAuthorizeUpdateStatus(t *testing.T) {
	target := &models.Request{ID: 10, UserID: 5, AssignedTo: ptr(7)}
	assignee := &models.Principal{ID: 7, Role: models.RoleTechnician}
	otherTech := &models.Principal{ID: 8, Role: models.RoleTechnician}
	submitter := &models.Principal{ID: 5, Role: models.RoleStudent}
	admin := &models.Principal{ID: 1, Role: models.RoleAdmin}

	require.NoError(t, Authorize(assignee, ActionUpdateStatus, target))
	require.NoError(t, Authorize(admin, ActionUpdateStatus, target))

	err := Authorize(otherTech, ActionUpdateStatus, target)
	require.Error(t, err)
	assert.Equal(t, ReasonNotAssignee, appErrors.FromError(err).Message)

	err = Authorize(submitter, ActionUpdateStatus, target)
	require.Error(t, err)
	assert.Equal(t, ReasonRoleForbidden, appErrors.FromError(err).Message)
}

func TestAuthorizeUnassignedStatusChange(t *testing.T) {
	target := &models.Request{ID: 10, UserID: 5}
	tech := &models.Principal{ID: 7, Role: models.RoleTechnician}

	err := Authorize(tech, ActionUpdateStatus, target)
	require.Error(t, err)
	assert.Equal(t, ReasonNotAssignee, appErrors.FromError(err).Message)
}

func TestAuthorizeAdminOnlyActions(t *testing.T) {
	tech := &models.Principal{ID: 7, Role: models.RoleTechnician}
	student := &models.Principal{ID: 5, Role: models.RoleStudent}
	admin := &models.Principal{ID: 1, Role: models.RoleAdmin}

	for _, action := range []Action{ActionAssignRequest, ActionManageCategory, ActionManageUsers, ActionExportRequests} {
		require.NoError(t, Authorize(admin, action, nil), string(action))
		for _, p := range []*models.Principal{tech, student} {
			err := Authorize(p, action, nil)
			require.Error(t, err, string(action))
			assert.Equal(t, ReasonRoleForbidden, appErrors.FromError(err).Message)
		}
	}
}

func TestAuthorizeCreateResolution(t *testing.T) {
	target := &models.Request{ID: 10, AssignedTo: ptr(7)}

	require.NoError(t, Authorize(&models.Principal{ID: 7, Role: models.RoleTechnician}, ActionCreateResolution, target))

	err := Authorize(&models.Principal{ID: 8, Role: models.RoleTechnician}, ActionCreateResolution, target)
	require.Error(t, err)
	assert.Equal(t, ReasonNotAssignee, appErrors.FromError(err).Message)

	err = Authorize(&models.Principal{ID: 1, Role: models.RoleAdmin}, ActionCreateResolution, target)
	require.Error(t, err)
	assert.Equal(t, ReasonRoleForbidden, appErrors.FromError(err).Message)
}
