package handler

import (
	"errors"
	"net/http"

	"skillup/internal/logger"
	"skillup/internal/middleware"
	"skillup/internal/service"

	"github.com/gin-gonic/gin"
)

var statusOf = []struct {
	err    error
	status int
	msg    string
}{
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrNotFound, http.StatusNotFound, "not found"},
	{service.ErrBadRequest, http.StatusBadRequest, "invalid request"},
	{service.ErrConflict, http.StatusConflict, "conflict, retry"},
	{service.ErrBadGateway, http.StatusBadGateway, "task generation unavailable"},
}

func writeError(c *gin.Context, op string, err error) {
	for _, m := range statusOf {
		if errors.Is(err, m.err) {
			logger.Warn(op+".failed", "user_id", c.GetString(middleware.CtxUserID), "status", m.status, "err", err)
			c.JSON(m.status, gin.H{"error": m.msg})
			return
		}
	}
	logger.Error(op+".failed", "user_id", c.GetString(middleware.CtxUserID), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
