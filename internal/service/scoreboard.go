package service

import (
	"context"
	"fmt"

	"skillup/internal/game"
	"skillup/internal/model"
	"skillup/internal/repo"
)

// ScoreboardService keeps the capped leaderboard in step with user scores.
type ScoreboardService struct {
	users repo.UserRepo
	board repo.LeaderboardRepo
	size  int
}

func NewScoreboardService(stores *repo.Stores, rules game.Rules) *ScoreboardService {
	return &ScoreboardService{users: stores.Users, board: stores.Board, size: rules.LeaderboardSize()}
}

// Publish upserts the user's current score and trims the board.
func (s *ScoreboardService) Publish(ctx context.Context, u *model.User) error {
	if _, err := s.board.Upsert(ctx, game.Entry{Username: u.Username, Score: u.Score}, s.size); err != nil {
		return fmt.Errorf("publish %s: %w", u.Username, err)
	}
	return nil
}

func (s *ScoreboardService) Get(ctx context.Context) ([]game.Entry, error) {
	items, err := s.board.Get(ctx)
	if err != nil {
		return nil, storeErr("get leaderboard", err)
	}
	return items, nil
}

// Rebuild replaces the cached board with the top users by stored score.
func (s *ScoreboardService) Rebuild(ctx context.Context) ([]game.Entry, error) {
	users, err := s.users.TopByScore(ctx, s.size)
	if err != nil {
		return nil, storeErr("load top users", err)
	}
	items := make([]game.Entry, 0, len(users))
	for _, u := range users {
		items = append(items, game.Entry{Username: u.Username, Score: u.Score})
	}
	out, err := s.board.Replace(ctx, items, s.size)
	if err != nil {
		return nil, storeErr("replace leaderboard", err)
	}
	return out, nil
}
