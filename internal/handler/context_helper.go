package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Enochteo/web103-finalproject/internal/middleware"
	"github.com/Enochteo/web103-finalproject/internal/models"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func principalFromContext(c *gin.Context) *models.Principal {
	return claimsFromContext(c).Principal()
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid id")
	}
	return id, nil
}
