package model

import "skillup/internal/game"

type CreatePlanRequest struct {
	Goal string `json:"goal" binding:"required"`
}

type ReplanRequest struct {
	Goal string `json:"goal" binding:"required"`
}

type CompleteTaskRequest struct {
	Report string `json:"report"`
}

type RetaskRequest struct {
	Reason string `json:"reason"`
}

type PlanResponse struct {
	PlanID string `json:"plan_id"`
	Tasks  []Task `json:"tasks"`
}

type ScoreResponse struct {
	Score int `json:"score"`
}

type RetaskResponse struct {
	NewPrompt string `json:"new_prompt"`
	NewTask   Task   `json:"new_task"`
}

type PlanWithTasks struct {
	Plan  Plan   `json:"plan"`
	Tasks []Task `json:"tasks"`
}

type ActivePlansResponse struct {
	Plans []PlanWithTasks `json:"plans"`
}

type LeaderboardResponse struct {
	Items []game.Entry `json:"items"`
}

type MedalsResponse struct {
	Medals map[string][]MedalEntry `json:"medals"`
}
