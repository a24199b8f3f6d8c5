package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enochteo/web103-finalproject/internal/models"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

func TestUserServiceCreate(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil, nil, nil)

	user, err := svc.Create(context.Background(), admin, CreateUserRequest{
		Username: "fixit",
		Email:    "fixit@campus.edu",
		Role:     models.RoleTechnician,
		Password: "hunter22",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTechnician, user.Role)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
}

func TestUserServiceCreateAdminOnly(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), student, CreateUserRequest{
		Username: "sneaky",
		Email:    "sneaky@campus.edu",
		Role:     models.RoleAdmin,
		Password: "hunter22",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Create(context.Background(), nil, CreateUserRequest{
		Username: "anon",
		Email:    "anon@campus.edu",
		Role:     models.RoleStudent,
		Password: "hunter22",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestUserServiceCreateInvalidRole(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), admin, CreateUserRequest{
		Username: "weird",
		Email:    "weird@campus.edu",
		Role:     models.UserRole("SUPERUSER"),
		Password: "hunter22",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo(models.User{ID: 1, Email: "taken@campus.edu", Role: models.RoleStudent})
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), admin, CreateUserRequest{
		Username: "dup",
		Email:    "taken@campus.edu",
		Role:     models.RoleStudent,
		Password: "hunter22",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUserServiceList(t *testing.T) {
	repo := newFakeUserRepo(
		models.User{ID: 1, Username: "a", Email: "a@campus.edu", Role: models.RoleStudent},
		models.User{ID: 2, Username: "b", Email: "b@campus.edu", Role: models.RoleTechnician},
	)
	svc := NewUserService(repo, nil, nil, nil)

	users, pagination, err := svc.List(context.Background(), admin, models.UserFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, pagination.TotalCount)

	_, _, err = svc.List(context.Background(), technician, models.UserFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
