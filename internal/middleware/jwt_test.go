package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enochteo/web103-finalproject/internal/models"
	"github.com/Enochteo/web103-finalproject/internal/service"
)

func newRouter(authSvc *service.AuthService, protected bool, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{}
	if protected {
		handlers = append(handlers, JWT(authSvc))
	} else {
		handlers = append(handlers, OptionalJWT(authSvc))
	}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		principal := CurrentPrincipal(c)
		if principal == nil {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": principal.ID, "role": principal.Role})
	})
	r.GET("/probe", handlers...)
	return r
}

func issueToken(t *testing.T, svc *service.AuthService, user *models.User) string {
	t.Helper()
	token, err := svc.TokenForUser(user)
	require.NoError(t, err)
	return token
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	router := newRouter(authSvc, true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	router := newRouter(authSvc, true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Token abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAcceptsValidToken(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	token := issueToken(t, authSvc, &models.User{ID: 7, Role: models.RoleTechnician, Email: "t@campus.edu", Username: "tech"})
	router := newRouter(authSvc, true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalJWTAllowsAnonymous(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	router := newRouter(authSvc, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")
}

func TestOptionalJWTIgnoresBadToken(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	router := newRouter(authSvc, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")
}

func TestRequireRolesBlocksOtherRoles(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	token := issueToken(t, authSvc, &models.User{ID: 7, Role: models.RoleStudent, Email: "s@campus.edu", Username: "student"})
	router := newRouter(authSvc, true, models.RoleAdmin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{Secret: "secret", Expiration: time.Hour}, nil)
	token := issueToken(t, authSvc, &models.User{ID: 7, Role: models.RoleAdmin, Email: "a@campus.edu", Username: "admin"})
	router := newRouter(authSvc, true, models.RoleAdmin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
