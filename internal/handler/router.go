package handler

import (
	"skillup/internal/auth"
	"skillup/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Plans *PlanHandler
	Tasks *TaskHandler
	Board *BoardHandler
}

func NewRouter(gate auth.Gate, h Handlers, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", Health)

	api := r.Group("/api", middleware.SessionAuth(gate))
	api.POST("/plans", h.Plans.Create)
	api.GET("/plans", h.Plans.List)
	api.DELETE("/plans/:plan_id", h.Plans.Delete)
	api.POST("/plans/:plan_id/replan", h.Plans.Replan)
	api.POST("/plans/:plan_id/tasks/:task_id/complete", h.Tasks.Complete)
	api.POST("/plans/:plan_id/tasks/:task_id/undo", h.Tasks.Undo)
	api.POST("/plans/:plan_id/tasks/:task_id/retask", h.Tasks.Retask)
	api.GET("/leaderboard", h.Board.Leaderboard)
	api.GET("/medals", h.Board.Medals)
	return r
}
