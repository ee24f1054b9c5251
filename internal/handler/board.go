package handler

import (
	"net/http"

	"skillup/internal/middleware"
	"skillup/internal/model"
	"skillup/internal/service"

	"github.com/gin-gonic/gin"
)

type BoardHandler struct {
	board  *service.ScoreboardService
	medals *service.MedalService
}

func NewBoardHandler(board *service.ScoreboardService, medals *service.MedalService) *BoardHandler {
	return &BoardHandler{board: board, medals: medals}
}

// GET /api/leaderboard
func (h *BoardHandler) Leaderboard(c *gin.Context) {
	items, err := h.board.Get(c.Request.Context())
	if err != nil {
		writeError(c, "leaderboard.get", err)
		return
	}
	c.JSON(http.StatusOK, model.LeaderboardResponse{Items: items})
}

// GET /api/medals
func (h *BoardHandler) Medals(c *gin.Context) {
	medals, err := h.medals.List(c.Request.Context(), c.GetString(middleware.CtxUserID))
	if err != nil {
		writeError(c, "medals.list", err)
		return
	}
	c.JSON(http.StatusOK, model.MedalsResponse{Medals: medals})
}

// GET /healthz
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
