package repo

import (
	"context"
	"fmt"
	"time"

	"skillup/internal/model"

	"gorm.io/gorm"
)

// PlanMutation computes the columns to change from the current plan. Returning a nil map
// aborts without writing; returning an error aborts with that error.
type PlanMutation func(p *model.Plan) (map[string]any, error)

type PlanRepo interface {
	Create(ctx context.Context, p *model.Plan) error
	Get(ctx context.Context, userID, planID string) (*model.Plan, error)
	ListByUser(ctx context.Context, userID string) ([]model.Plan, error)
	ListActive(ctx context.Context, userID string) ([]model.Plan, error)
	// Mutate applies fn as a single revision-guarded update and returns the plan state
	// the winning write was computed from.
	Mutate(ctx context.Context, userID, planID string, fn PlanMutation) (*model.Plan, error)
	// AdvanceDone moves n_tasks_done by one for a task of the given batch in a single
	// conditional update, stamping completed_at when the count reaches n_tasks and
	// clearing it on undo. moved is false when the plan is deleted or batch is no
	// longer live. The returned plan is read after the update.
	AdvanceDone(ctx context.Context, userID, planID string, batch int, complete bool, at time.Time) (p *model.Plan, moved bool, err error)
	// ReserveTaskIDs advances next_task_id by n and returns the first reserved id.
	ReserveTaskIDs(ctx context.Context, userID, planID string, n int) (int, error)
}

type planRepo struct{ db *gorm.DB }

func NewPlanRepo(db *gorm.DB) PlanRepo { return &planRepo{db: db} }

func (r *planRepo) Create(ctx context.Context, p *model.Plan) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *planRepo) Get(ctx context.Context, userID, planID string) (*model.Plan, error) {
	var p model.Plan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND plan_id = ?", userID, planID).
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *planRepo) ListByUser(ctx context.Context, userID string) ([]model.Plan, error) {
	var plans []model.Plan
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&plans).Error
	return plans, err
}

func (r *planRepo) ListActive(ctx context.Context, userID string) ([]model.Plan, error) {
	active := r.db.Model(&model.ActivePlan{}).Select("plan_id").Where("user_id = ?", userID)
	var plans []model.Plan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND plan_id IN (?)", userID, active).
		Order("created_at").
		Find(&plans).Error
	return plans, err
}

func (r *planRepo) Mutate(ctx context.Context, userID, planID string, fn PlanMutation) (*model.Plan, error) {
	var before *model.Plan
	err := retryCAS(ctx, func() (bool, error) {
		cur, err := r.Get(ctx, userID, planID)
		if err != nil {
			return false, err
		}
		changes, err := fn(cur)
		if err != nil {
			return false, err
		}
		if changes == nil {
			before = cur
			return true, nil
		}
		changes["revision"] = cur.Revision + 1
		res := r.db.WithContext(ctx).Model(&model.Plan{}).
			Where("id = ? AND revision = ?", cur.ID, cur.Revision).
			Updates(changes)
		if res.Error != nil {
			return false, fmt.Errorf("update plan %s: %w", planID, res.Error)
		}
		before = cur
		return res.RowsAffected == 1, nil
	})
	if err != nil {
		return nil, err
	}
	return before, nil
}

func (r *planRepo) AdvanceDone(ctx context.Context, userID, planID string, batch int, complete bool, at time.Time) (*model.Plan, bool, error) {
	changes := map[string]any{"revision": gorm.Expr("revision + 1")}
	if complete {
		// map keys are assigned in sorted order, so completed_at still sees the old n_tasks_done
		changes["completed_at"] = gorm.Expr(
			"CASE WHEN completed_at IS NULL AND n_tasks > 0 AND n_tasks_done + 1 >= n_tasks THEN ? ELSE completed_at END", at)
		changes["n_tasks_done"] = gorm.Expr("n_tasks_done + 1")
	} else {
		changes["completed_at"] = nil
		changes["n_tasks_done"] = gorm.Expr("CASE WHEN n_tasks_done > 0 THEN n_tasks_done - 1 ELSE 0 END")
	}
	res := r.db.WithContext(ctx).Model(&model.Plan{}).
		Where("user_id = ? AND plan_id = ? AND batch = ? AND deleted = ?", userID, planID, batch, false).
		Updates(changes)
	if res.Error != nil {
		return nil, false, fmt.Errorf("advance plan %s: %w", planID, res.Error)
	}
	p, err := r.Get(ctx, userID, planID)
	if err != nil {
		return nil, false, err
	}
	return p, res.RowsAffected > 0, nil
}

func (r *planRepo) ReserveTaskIDs(ctx context.Context, userID, planID string, n int) (int, error) {
	p, err := r.Mutate(ctx, userID, planID, func(p *model.Plan) (map[string]any, error) {
		if p.Deleted {
			return nil, ErrNotFound
		}
		return map[string]any{"next_task_id": p.NextTaskID + n}, nil
	})
	if err != nil {
		return 0, err
	}
	return p.NextTaskID, nil
}
