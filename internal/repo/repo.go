package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrContention means a revision-guarded update kept losing to concurrent writers.
	ErrContention = errors.New("write contention")
	// ErrUsernameTaken means the display name already belongs to another user id.
	ErrUsernameTaken = errors.New("username taken")
)

const maxCASAttempts = 8

// Stores bundles every record set the engines write to.
type Stores struct {
	Plans  PlanRepo
	Tasks  TaskRepo
	Users  UserRepo
	Medals MedalRepo
	Board  LeaderboardRepo
	Events EventRepo
}

func New(db *gorm.DB) *Stores {
	return &Stores{
		Plans:  NewPlanRepo(db),
		Tasks:  NewTaskRepo(db),
		Users:  NewUserRepo(db),
		Medals: NewMedalRepo(db),
		Board:  NewLeaderboardRepo(db),
		Events: NewEventRepo(db),
	}
}

// retryCAS runs attempt until it reports a winning write. Each attempt re-reads the
// record, so a lost race is simply replayed against fresh state.
func retryCAS(ctx context.Context, attempt func() (bool, error)) error {
	for i := 0; i < maxCASAttempts; i++ {
		won, err := attempt()
		if err != nil {
			return err
		}
		if won {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrContention
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
