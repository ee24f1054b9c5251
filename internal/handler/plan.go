package handler

import (
	"net/http"

	"skillup/internal/middleware"
	"skillup/internal/model"
	"skillup/internal/service"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	plans *service.PlanService
}

func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// POST /api/plans  body: {"goal":"..."}
func (h *PlanHandler) Create(c *gin.Context) {
	var req model.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	resp, err := h.plans.CreatePlan(c.Request.Context(),
		c.GetString(middleware.CtxUserID), c.GetString(middleware.CtxUserName), req.Goal)
	if err != nil {
		writeError(c, "plan.create", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/plans
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.plans.ListActivePlans(c.Request.Context(), c.GetString(middleware.CtxUserID))
	if err != nil {
		writeError(c, "plan.list", err)
		return
	}
	c.JSON(http.StatusOK, model.ActivePlansResponse{Plans: plans})
}

// DELETE /api/plans/:plan_id
func (h *PlanHandler) Delete(c *gin.Context) {
	if err := h.plans.DeletePlan(c.Request.Context(), c.GetString(middleware.CtxUserID), c.Param("plan_id")); err != nil {
		writeError(c, "plan.delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// POST /api/plans/:plan_id/replan  body: {"goal":"..."}
func (h *PlanHandler) Replan(c *gin.Context) {
	var req model.ReplanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	resp, err := h.plans.Replan(c.Request.Context(), c.GetString(middleware.CtxUserID), c.Param("plan_id"), req.Goal)
	if err != nil {
		writeError(c, "plan.replan", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
