package service

import (
	"context"
	"fmt"

	"skillup/internal/game"
	"skillup/internal/model"
	"skillup/internal/repo"
)

type MedalService struct {
	tasks  repo.TaskRepo
	medals repo.MedalRepo
}

func NewMedalService(stores *repo.Stores) *MedalService {
	return &MedalService{tasks: stores.Tasks, medals: stores.Medals}
}

// Regrade recomputes the grade for the task's day from every live task the user has
// due that day, and records it against taskID.
func (s *MedalService) Regrade(ctx context.Context, userID, day string, taskID int) (game.Grade, error) {
	tasks, err := s.tasks.ListByDay(ctx, userID, day)
	if err != nil {
		return game.GradeNone, fmt.Errorf("load day %s: %w", day, err)
	}
	done := 0
	for _, t := range tasks {
		if t.CompletedAt != nil {
			done++
		}
	}
	grade := game.GradeFor(done, len(tasks))
	if _, err := s.medals.SetGrade(ctx, userID, day, taskID, grade); err != nil {
		return game.GradeNone, fmt.Errorf("set medal %s: %w", day, err)
	}
	return grade, nil
}

// Revoke drops the entry taskID holds on day.
func (s *MedalService) Revoke(ctx context.Context, userID, day string, taskID int) error {
	if _, err := s.medals.SetGrade(ctx, userID, day, taskID, game.GradeNone); err != nil {
		return fmt.Errorf("revoke medal %s: %w", day, err)
	}
	return nil
}

// List returns the user's medals keyed by day. Days without entries are omitted.
func (s *MedalService) List(ctx context.Context, userID string) (map[string][]model.MedalEntry, error) {
	medals, err := s.medals.List(ctx, userID)
	if err != nil {
		return nil, storeErr("list medals", err)
	}
	out := make(map[string][]model.MedalEntry, len(medals))
	for _, m := range medals {
		if len(m.Entries) == 0 {
			continue
		}
		out[m.Day] = []model.MedalEntry(m.Entries)
	}
	return out, nil
}
