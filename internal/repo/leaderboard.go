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

type LeaderboardRepo interface {
	Get(ctx context.Context) ([]game.Entry, error)
	// Upsert replaces the caller's entry and trims to k in a single revision-guarded write.
	Upsert(ctx context.Context, e game.Entry, k int) ([]game.Entry, error)
	// Replace overwrites the whole list, used by rebuilds.
	Replace(ctx context.Context, items []game.Entry, k int) ([]game.Entry, error)
}

type leaderboardRepo struct{ db *gorm.DB }

func NewLeaderboardRepo(db *gorm.DB) LeaderboardRepo { return &leaderboardRepo{db: db} }

func (r *leaderboardRepo) load(ctx context.Context) (*model.Leaderboard, error) {
	var lb model.Leaderboard
	err := r.db.WithContext(ctx).Where("id = ?", model.LeaderboardID).First(&lb).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &lb, nil
}

func (r *leaderboardRepo) Get(ctx context.Context) ([]game.Entry, error) {
	lb, err := r.load(ctx)
	if errors.Is(err, ErrNotFound) {
		return []game.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if lb.Items == nil {
		return []game.Entry{}, nil
	}
	return []game.Entry(lb.Items), nil
}

func (r *leaderboardRepo) Upsert(ctx context.Context, e game.Entry, k int) ([]game.Entry, error) {
	return r.rewrite(ctx, func(items []game.Entry) []game.Entry {
		return game.UpsertTopK(items, e, k)
	})
}

func (r *leaderboardRepo) Replace(ctx context.Context, items []game.Entry, k int) ([]game.Entry, error) {
	top := game.TopK(items, k)
	return r.rewrite(ctx, func([]game.Entry) []game.Entry { return top })
}

func (r *leaderboardRepo) rewrite(ctx context.Context, fn func([]game.Entry) []game.Entry) ([]game.Entry, error) {
	var out []game.Entry
	err := retryCAS(ctx, func() (bool, error) {
		cur, err := r.load(ctx)
		if errors.Is(err, ErrNotFound) {
			seed := model.Leaderboard{ID: model.LeaderboardID, Items: datatypes.JSONSlice[game.Entry]{}}
			if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
				return false, fmt.Errorf("seed leaderboard: %w", err)
			}
			return false, nil
		}
		if err != nil {
			return false, err
		}

		next := fn([]game.Entry(cur.Items))
		if next == nil {
			next = []game.Entry{}
		}
		res := r.db.WithContext(ctx).Model(&model.Leaderboard{}).
			Where("id = ? AND revision = ?", cur.ID, cur.Revision).
			Updates(map[string]any{
				"items":    datatypes.NewJSONSlice(next),
				"revision": cur.Revision + 1,
			})
		if res.Error != nil {
			return false, fmt.Errorf("update leaderboard: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return false, nil
		}
		out = next
		return true, nil
	})
	return out, err
}
