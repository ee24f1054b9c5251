package repo

import (
	"context"
	"errors"
	"fmt"

	"skillup/internal/game"
	"skillup/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MedalRepo interface {
	// SetGrade drops any entry for taskID on day and, unless grade is GradeNone, records
	// the new one. The day's entry list is rewritten with a revision check.
	SetGrade(ctx context.Context, userID, day string, taskID int, grade game.Grade) (*model.Medal, error)
	Get(ctx context.Context, userID, day string) (*model.Medal, error)
	List(ctx context.Context, userID string) ([]model.Medal, error)
}

type medalRepo struct{ db *gorm.DB }

func NewMedalRepo(db *gorm.DB) MedalRepo { return &medalRepo{db: db} }

func (r *medalRepo) Get(ctx context.Context, userID, day string) (*model.Medal, error) {
	var m model.Medal
	err := r.db.WithContext(ctx).Where("user_id = ? AND day = ?", userID, day).First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *medalRepo) List(ctx context.Context, userID string) ([]model.Medal, error) {
	var medals []model.Medal
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("day").Find(&medals).Error
	return medals, err
}

func (r *medalRepo) SetGrade(ctx context.Context, userID, day string, taskID int, grade game.Grade) (*model.Medal, error) {
	var out *model.Medal
	err := retryCAS(ctx, func() (bool, error) {
		cur, err := r.Get(ctx, userID, day)
		if errors.Is(err, ErrNotFound) {
			if err := r.seed(ctx, userID, day); err != nil {
				return false, err
			}
			// lost or won the insert, either way re-read on the next attempt
			return false, nil
		}
		if err != nil {
			return false, err
		}

		entries := make([]model.MedalEntry, 0, len(cur.Entries)+1)
		for _, e := range cur.Entries {
			if e.TaskID != taskID {
				entries = append(entries, e)
			}
		}
		if grade.Valid() {
			entries = append(entries, model.MedalEntry{Grade: grade, TaskID: taskID})
		}

		res := r.db.WithContext(ctx).Model(&model.Medal{}).
			Where("id = ? AND revision = ?", cur.ID, cur.Revision).
			Updates(map[string]any{
				"entries":  datatypes.NewJSONSlice(entries),
				"revision": cur.Revision + 1,
			})
		if res.Error != nil {
			return false, fmt.Errorf("update medal %s/%s: %w", userID, day, res.Error)
		}
		if res.RowsAffected != 1 {
			return false, nil
		}
		cur.Entries = entries
		cur.Revision++
		out = cur
		return true, nil
	})
	return out, err
}

func (r *medalRepo) seed(ctx context.Context, userID, day string) error {
	m := model.Medal{UserID: userID, Day: day, Entries: datatypes.JSONSlice[model.MedalEntry]{}}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
}
