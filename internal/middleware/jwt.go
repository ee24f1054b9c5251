package middleware

import (
	"net/http"
	"strings"

	"skillup/internal/auth"
	"skillup/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID   = "user_id"
	CtxUserName = "user_name"
)

func SessionAuth(gate auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := gate.Verify(strings.TrimSpace(header[7:]))
		if err != nil {
			logger.Debug("auth.reject", "path", c.FullPath(), "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(CtxUserID, id.UserID)
		c.Set(CtxUserName, id.Username)
		c.Next()
	}
}
