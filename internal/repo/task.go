package repo

import (
	"context"
	"fmt"
	"time"

	"skillup/internal/game"
	"skillup/internal/model"

	"gorm.io/gorm"
)

// TaskContent is the part of a task that Retask replaces.
type TaskContent struct {
	Title        string
	Description  string
	Difficulty   game.Difficulty
	Score        int
	DeadlineDate string
}

// BatchCounts are the live-batch counters of one plan.
type BatchCounts struct {
	Total int
	Done  int
}

type TaskRepo interface {
	CreateBatch(ctx context.Context, tasks []model.Task) error
	Get(ctx context.Context, key model.TaskKey) (*model.Task, error)
	ListByPlan(ctx context.Context, userID, planID string) ([]model.Task, error)
	ListByDay(ctx context.Context, userID, day string) ([]model.Task, error)
	// MarkCompleted flips a pending, live task to completed. ErrNotFound when no row
	// satisfies the precondition.
	MarkCompleted(ctx context.Context, key model.TaskKey, at time.Time, report string) (*model.Task, error)
	// MarkPending is the inverse of MarkCompleted.
	MarkPending(ctx context.Context, key model.TaskKey) (*model.Task, error)
	// Rewrite replaces the content of a pending, live task in place.
	Rewrite(ctx context.Context, key model.TaskKey, c TaskContent) (*model.Task, error)
	// SoftDeletePending marks the plan's pending tasks deleted. belowBatch > 0 limits
	// the sweep to tasks of earlier batches.
	SoftDeletePending(ctx context.Context, userID, planID string, belowBatch int) (int64, error)
	// SoftDeleteBatch withdraws the pending tasks of one batch.
	SoftDeleteBatch(ctx context.Context, userID, planID string, batch int) (int64, error)
	CompletedTotals(ctx context.Context, userID string) (score, count int, err error)
	CountBatch(ctx context.Context, userID, planID string, batch int) (BatchCounts, error)
}

type taskRepo struct{ db *gorm.DB }

func NewTaskRepo(db *gorm.DB) TaskRepo { return &taskRepo{db: db} }

func (r *taskRepo) CreateBatch(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

func (r *taskRepo) live(ctx context.Context, key model.TaskKey) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND plan_id = ? AND task_id = ? AND deleted = ?", key.UserID, key.PlanID, key.TaskID, false)
}

func (r *taskRepo) Get(ctx context.Context, key model.TaskKey) (*model.Task, error) {
	var t model.Task
	if err := r.live(ctx, key).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *taskRepo) ListByPlan(ctx context.Context, userID, planID string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND plan_id = ? AND deleted = ?", userID, planID, false).
		Order("task_id").
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) ListByDay(ctx context.Context, userID, day string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deadline_date = ? AND deleted = ?", userID, day, false).
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) MarkCompleted(ctx context.Context, key model.TaskKey, at time.Time, report string) (*model.Task, error) {
	changes := map[string]any{"completed_at": at}
	if report != "" {
		changes["report"] = report
	}
	res := r.live(ctx, key).Where("completed_at IS NULL").Updates(changes)
	return r.afterFlip(ctx, key, res)
}

func (r *taskRepo) MarkPending(ctx context.Context, key model.TaskKey) (*model.Task, error) {
	res := r.live(ctx, key).Where("completed_at IS NOT NULL").Update("completed_at", nil)
	return r.afterFlip(ctx, key, res)
}

func (r *taskRepo) afterFlip(ctx context.Context, key model.TaskKey, res *gorm.DB) (*model.Task, error) {
	if res.Error != nil {
		return nil, fmt.Errorf("update task %d: %w", key.TaskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, key)
}

func (r *taskRepo) Rewrite(ctx context.Context, key model.TaskKey, c TaskContent) (*model.Task, error) {
	res := r.live(ctx, key).Where("completed_at IS NULL").Updates(map[string]any{
		"title":         c.Title,
		"description":   c.Description,
		"difficulty":    c.Difficulty,
		"score":         c.Score,
		"deadline_date": c.DeadlineDate,
		"completed_at":  nil,
	})
	return r.afterFlip(ctx, key, res)
}

func (r *taskRepo) SoftDeletePending(ctx context.Context, userID, planID string, belowBatch int) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND plan_id = ? AND deleted = ? AND completed_at IS NULL", userID, planID, false)
	if belowBatch > 0 {
		q = q.Where("batch < ?", belowBatch)
	}
	res := q.Update("deleted", true)
	return res.RowsAffected, res.Error
}

func (r *taskRepo) SoftDeleteBatch(ctx context.Context, userID, planID string, batch int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND plan_id = ? AND batch = ? AND deleted = ? AND completed_at IS NULL", userID, planID, batch, false).
		Update("deleted", true)
	return res.RowsAffected, res.Error
}

func (r *taskRepo) CompletedTotals(ctx context.Context, userID string) (int, int, error) {
	var row struct {
		Score int
		Count int
	}
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("COALESCE(SUM(score), 0) AS score, COUNT(*) AS count").
		Where("user_id = ? AND deleted = ? AND completed_at IS NOT NULL", userID, false).
		Scan(&row).Error
	return row.Score, row.Count, err
}

func (r *taskRepo) CountBatch(ctx context.Context, userID, planID string, batch int) (BatchCounts, error) {
	var c BatchCounts
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN completed_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS done").
		Where("user_id = ? AND plan_id = ? AND batch = ? AND deleted = ?", userID, planID, batch, false).
		Scan(&c).Error
	return c, err
}
