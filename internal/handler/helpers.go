package handlers

import (
	"strconv"
	"strings"

	"AlertDesk/internal/models"
	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// identity is set by Authenticator.Required on every guarded route.
func identity(c *gin.Context) models.Identity {
	id, _ := models.CurrentIdentity(c)
	return id
}

// idParam reads :id; anything but a positive integer is a missing resource.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, apperrors.WithKind(apperrors.KindNotFound, "not found"))
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, key string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, apperrors.WithKindf(apperrors.KindValidation, "%s must be a positive integer", key).WithContext("field", key)
	}
	u := uint(v)
	return &u, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return nil, apperrors.WithKindf(apperrors.KindValidation, "%s must be true or false", key).WithContext("field", key)
	}
	return &v, nil
}

// bindJSON answers 400 on a malformed body.
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.Error(c, apperrors.WithKind(apperrors.KindValidation, err.Error()))
		return false
	}
	return true
}
