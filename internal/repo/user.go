package repo

import (
	"context"
	"errors"
	"fmt"

	"skillup/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepo interface {
	// Ensure creates the user row on first sight and leaves an existing row untouched.
	// ErrUsernameTaken when another user already holds username.
	Ensure(ctx context.Context, userID, username string) error
	Get(ctx context.Context, userID string) (*model.User, error)
	// ApplyScore adds the deltas in one conditional update and returns the row after it.
	// n_tasks_done never goes below zero.
	ApplyScore(ctx context.Context, userID string, scoreDelta, tasksDelta int) (*model.User, error)
	IncPlans(ctx context.Context, userID string) error
	SetTotals(ctx context.Context, userID string, score, tasksDone int) (*model.User, error)
	TopByScore(ctx context.Context, k int) ([]model.User, error)

	AddActivePlan(ctx context.Context, userID, planID string) error
	RemoveActivePlan(ctx context.Context, userID, planID string) error
	ActivePlanIDs(ctx context.Context, userID string) ([]string, error)
}

type userRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) UserRepo { return &userRepo{db: db} }

func (r *userRepo) Ensure(ctx context.Context, userID, username string) error {
	u := model.User{UserID: userID, Username: username, Level: "beginner"}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&u).Error
	if err != nil {
		return fmt.Errorf("insert user %s: %w", userID, err)
	}
	// the insert is skipped on either unique key, so check which one it was
	if _, err := r.Get(ctx, userID); errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	} else if err != nil {
		return err
	}
	return nil
}

func (r *userRepo) Get(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepo) ApplyScore(ctx context.Context, userID string, scoreDelta, tasksDelta int) (*model.User, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"score":        gorm.Expr("score + ?", scoreDelta),
			"n_tasks_done": gorm.Expr("CASE WHEN n_tasks_done + ? < 0 THEN 0 ELSE n_tasks_done + ? END", tasksDelta, tasksDelta),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, userID)
}

func (r *userRepo) IncPlans(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("user_id = ?", userID).
		Update("n_plans", gorm.Expr("n_plans + 1")).Error
}

func (r *userRepo) SetTotals(ctx context.Context, userID string, score, tasksDone int) (*model.User, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"score": score, "n_tasks_done": tasksDone})
	if res.Error != nil {
		return nil, res.Error
	}
	return r.Get(ctx, userID)
}

func (r *userRepo) TopByScore(ctx context.Context, k int) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Order("score DESC").Order("username ASC").
		Limit(k).
		Find(&users).Error
	return users, err
}

func (r *userRepo) AddActivePlan(ctx context.Context, userID, planID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ActivePlan{UserID: userID, PlanID: planID}).Error
}

func (r *userRepo) RemoveActivePlan(ctx context.Context, userID, planID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND plan_id = ?", userID, planID).
		Delete(&model.ActivePlan{}).Error
}

func (r *userRepo) ActivePlanIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.ActivePlan{}).
		Where("user_id = ?", userID).
		Order("plan_id").
		Pluck("plan_id", &ids).Error
	return ids, err
}
