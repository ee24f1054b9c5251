package handler

import (
	"net/http"
	"strconv"

	"skillup/internal/middleware"
	"skillup/internal/model"
	"skillup/internal/service"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	completion *service.CompletionService
	plans      *service.PlanService
}

func NewTaskHandler(completion *service.CompletionService, plans *service.PlanService) *TaskHandler {
	return &TaskHandler{completion: completion, plans: plans}
}

func taskID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("task_id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

// POST /api/plans/:plan_id/tasks/:task_id/complete  body: {"report":"..."} (optional)
func (h *TaskHandler) Complete(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req model.CompleteTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	score, err := h.completion.CompleteTask(c.Request.Context(), c.GetString(middleware.CtxUserID), c.Param("plan_id"), id, req.Report)
	if err != nil {
		writeError(c, "task.complete", err)
		return
	}
	c.JSON(http.StatusOK, model.ScoreResponse{Score: score})
}

// POST /api/plans/:plan_id/tasks/:task_id/undo
func (h *TaskHandler) Undo(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	score, err := h.completion.UndoTask(c.Request.Context(), c.GetString(middleware.CtxUserID), c.Param("plan_id"), id)
	if err != nil {
		writeError(c, "task.undo", err)
		return
	}
	c.JSON(http.StatusOK, model.ScoreResponse{Score: score})
}

// POST /api/plans/:plan_id/tasks/:task_id/retask  body: {"reason":"..."}
func (h *TaskHandler) Retask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req model.RetaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	resp, err := h.plans.Retask(c.Request.Context(), c.GetString(middleware.CtxUserID), c.Param("plan_id"), id, req.Reason)
	if err != nil {
		writeError(c, "task.retask", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
