package model

import (
	"time"

	"skillup/internal/game"

	"gorm.io/datatypes"
)

type Plan struct {
	ID          int64                       `gorm:"primaryKey" json:"-"`
	PlanID      string                      `gorm:"column:plan_id;size:64;uniqueIndex:uk_user_plan,priority:2" json:"plan_id"`
	UserID      string                      `gorm:"column:user_id;size:64;uniqueIndex:uk_user_plan,priority:1" json:"user_id"`
	Goal        string                      `gorm:"column:goal;type:text" json:"goal"`
	NTasks      int                         `gorm:"column:n_tasks" json:"n_tasks"`
	NTasksDone  int                         `gorm:"column:n_tasks_done" json:"n_tasks_done"`
	NReplans    int                         `gorm:"column:n_replans" json:"n_replans"`
	NextTaskID  int                         `gorm:"column:next_task_id" json:"next_task_id"`
	Batch       int                         `gorm:"column:batch" json:"batch"`
	Deleted     bool                        `gorm:"column:deleted" json:"deleted"`
	CompletedAt *time.Time                  `gorm:"column:completed_at" json:"completed_at"`
	Prompts     datatypes.JSONSlice[string] `gorm:"column:prompts" json:"prompts"`
	Responses   datatypes.JSONSlice[string] `gorm:"column:responses" json:"responses"`
	Revision    int                         `gorm:"column:revision" json:"-"`
	CreatedAt   time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

// Active reports whether the plan belongs in the owner's active set.
func (p *Plan) Active() bool { return !p.Deleted && p.CompletedAt == nil }

type Task struct {
	ID           int64           `gorm:"primaryKey" json:"-"`
	UserID       string          `gorm:"column:user_id;size:64;uniqueIndex:uk_task,priority:1;index:idx_task_day,priority:1" json:"user_id"`
	PlanID       string          `gorm:"column:plan_id;size:64;uniqueIndex:uk_task,priority:2" json:"plan_id"`
	TaskID       int             `gorm:"column:task_id;uniqueIndex:uk_task,priority:3" json:"task_id"`
	Batch        int             `gorm:"column:batch" json:"-"`
	Title        string          `gorm:"column:title;size:255" json:"title"`
	Description  string          `gorm:"column:description;type:text" json:"description"`
	Difficulty   game.Difficulty `gorm:"column:difficulty;size:16" json:"difficulty"`
	Score        int             `gorm:"column:score" json:"score"`
	DeadlineDate string          `gorm:"column:deadline_date;size:10;index:idx_task_day,priority:2" json:"deadline_date"`
	CompletedAt  *time.Time      `gorm:"column:completed_at" json:"completed_at"`
	Deleted      bool            `gorm:"column:deleted" json:"deleted"`
	Report       string          `gorm:"column:report;type:text" json:"report,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"-"`
}

type TaskKey struct {
	UserID string
	PlanID string
	TaskID int
}

type User struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	Username   string    `gorm:"column:username;size:64;uniqueIndex" json:"username"`
	Level      string    `gorm:"column:level;size:32;default:beginner" json:"level"`
	Score      int       `gorm:"column:score;index" json:"score"`
	NTasksDone int       `gorm:"column:n_tasks_done" json:"n_tasks_done"`
	NPlans     int       `gorm:"column:n_plans" json:"n_plans"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"-"`
}

// ActivePlan is one member of a user's active_plans set.
type ActivePlan struct {
	UserID string `gorm:"column:user_id;primaryKey;size:64"`
	PlanID string `gorm:"column:plan_id;primaryKey;size:64"`
}

// MedalEntry is keyed by task_id alone, so same-day tasks sharing an id across plans
// replace each other's entry.
type MedalEntry struct {
	Grade  game.Grade `json:"grade"`
	TaskID int        `json:"task_id"`
}

type Medal struct {
	ID        int64                           `gorm:"primaryKey" json:"-"`
	UserID    string                          `gorm:"column:user_id;size:64;uniqueIndex:uk_user_day,priority:1" json:"user_id"`
	Day       string                          `gorm:"column:day;size:10;uniqueIndex:uk_user_day,priority:2" json:"day"`
	Entries   datatypes.JSONSlice[MedalEntry] `gorm:"column:entries" json:"entries"`
	Revision  int                             `gorm:"column:revision" json:"-"`
	UpdatedAt time.Time                       `gorm:"column:updated_at" json:"updated_at"`
}

const LeaderboardID = "topK"

type Leaderboard struct {
	ID        string                          `gorm:"column:id;primaryKey;size:16" json:"-"`
	Items     datatypes.JSONSlice[game.Entry] `gorm:"column:items" json:"items"`
	Revision  int                             `gorm:"column:revision" json:"-"`
	UpdatedAt time.Time                       `gorm:"column:updated_at" json:"updated_at"`
}

type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventDone     EventStatus = "done"
	EventDegraded EventStatus = "degraded"
	EventFailed   EventStatus = "failed"
	EventRepaired EventStatus = "repaired"
)

// LedgerEvent records how far one engine operation got through its ordered writes.
type LedgerEvent struct {
	ID         int64       `gorm:"primaryKey" json:"id"`
	Op         string      `gorm:"column:op;size:32" json:"op"`
	UserID     string      `gorm:"column:user_id;size:64;index" json:"user_id"`
	PlanID     string      `gorm:"column:plan_id;size:64" json:"plan_id"`
	TaskID     int         `gorm:"column:task_id" json:"task_id"`
	ScoreDelta int         `gorm:"column:score_delta" json:"score_delta"`
	Stage      string      `gorm:"column:stage;size:16" json:"stage"`
	Status     EventStatus `gorm:"column:status;size:16;index" json:"status"`
	Error      string      `gorm:"column:error;type:text" json:"error,omitempty"`
	CreatedAt  time.Time   `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Plan) TableName() string        { return "plans" }
func (Task) TableName() string        { return "tasks" }
func (User) TableName() string        { return "users" }
func (ActivePlan) TableName() string  { return "user_active_plans" }
func (Medal) TableName() string       { return "medals" }
func (Leaderboard) TableName() string { return "leaderboards" }
func (LedgerEvent) TableName() string { return "ledger_events" }

// Tables lists every entity, in dependency order, for schema tooling and tests.
func Tables() []any {
	return []any{&User{}, &ActivePlan{}, &Plan{}, &Task{}, &Medal{}, &Leaderboard{}, &LedgerEvent{}}
}
