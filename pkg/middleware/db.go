package middleware

import (
	constants "AlertDesk/pkg/constant"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InjectDB exposes db to handlers under constants.DbField.
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(constants.DbField, db)
		c.Next()
	}
}

// DB returns the request scoped handle bound to the request context.
func DB(c *gin.Context) *gorm.DB {
	return c.MustGet(constants.DbField).(*gorm.DB).WithContext(c.Request.Context())
}
