package service

import (
	"context"
	"time"

	"skillup/internal/logger"
	"skillup/internal/model"
	"skillup/internal/repo"
)

// CompletionService toggles task completion and carries the effect through plan, user,
// medal and leaderboard state, in that order, one conditional write per record.
type CompletionService struct {
	plans  repo.PlanRepo
	tasks  repo.TaskRepo
	users  repo.UserRepo
	events repo.EventRepo
	medals *MedalService
	board  *ScoreboardService
	now    func() time.Time
}

func NewCompletionService(stores *repo.Stores, medals *MedalService, board *ScoreboardService) *CompletionService {
	return &CompletionService{
		plans:  stores.Plans,
		tasks:  stores.Tasks,
		users:  stores.Users,
		events: stores.Events,
		medals: medals,
		board:  board,
		now:    time.Now,
	}
}

// CompleteTask marks a pending task done and returns the user's new score. A task that is
// already completed, deleted or unknown yields ErrNotFound.
func (s *CompletionService) CompleteTask(ctx context.Context, userID, planID string, taskID int, report string) (int, error) {
	key := model.TaskKey{UserID: userID, PlanID: planID, TaskID: taskID}
	task, err := s.tasks.MarkCompleted(ctx, key, s.now().UTC(), report)
	if err != nil {
		return 0, storeErr("complete task", err)
	}

	tr := openTrail(ctx, s.events, "complete", task, task.Score)
	defer tr.close(ctx)

	u, err := s.propagate(ctx, tr, task, true)
	if err != nil {
		return 0, err
	}
	logger.Info("task.complete.ok", "user_id", userID, "plan_id", planID, "task_id", taskID, "score", u.Score)
	return u.Score, nil
}

// UndoTask reverts a completed task and returns the user's new score.
func (s *CompletionService) UndoTask(ctx context.Context, userID, planID string, taskID int) (int, error) {
	key := model.TaskKey{UserID: userID, PlanID: planID, TaskID: taskID}
	task, err := s.tasks.MarkPending(ctx, key)
	if err != nil {
		return 0, storeErr("undo task", err)
	}

	tr := openTrail(ctx, s.events, "undo", task, -task.Score)
	defer tr.close(ctx)

	u, err := s.propagate(ctx, tr, task, false)
	if err != nil {
		return 0, err
	}
	logger.Info("task.undo.ok", "user_id", userID, "plan_id", planID, "task_id", taskID, "score", u.Score)
	return u.Score, nil
}

func (s *CompletionService) propagate(ctx context.Context, tr *trail, task *model.Task, complete bool) (*model.User, error) {
	// plan
	p, moved, err := s.plans.AdvanceDone(ctx, task.UserID, task.PlanID, task.Batch, complete, s.now().UTC())
	if err != nil {
		tr.fail("plan", err)
		logger.Error("task.plan.failed", "user_id", task.UserID, "plan_id", task.PlanID, "task_id", task.TaskID, "err", err)
		return nil, storeErr("update plan", err)
	}
	tr.reached("plan")

	// user
	scoreDelta, tasksDelta := task.Score, 1
	if !complete {
		scoreDelta, tasksDelta = -task.Score, -1
	}
	u, err := s.users.ApplyScore(ctx, task.UserID, scoreDelta, tasksDelta)
	if err != nil {
		tr.fail("user", err)
		logger.Error("task.user.failed", "user_id", task.UserID, "task_id", task.TaskID, "err", err)
		return nil, storeErr("update user", err)
	}
	switch {
	case moved && complete && !p.Active():
		err = s.users.RemoveActivePlan(ctx, task.UserID, task.PlanID)
	case moved && !complete && p.Active():
		err = s.users.AddActivePlan(ctx, task.UserID, task.PlanID)
	}
	if err != nil {
		tr.fail("user", err)
		logger.Error("task.active_plans.failed", "user_id", task.UserID, "plan_id", task.PlanID, "err", err)
		return nil, storeErr("update active plans", err)
	}
	tr.reached("user")

	// medal
	if complete {
		_, err = s.medals.Regrade(ctx, task.UserID, task.DeadlineDate, task.TaskID)
	} else {
		err = s.medals.Revoke(ctx, task.UserID, task.DeadlineDate, task.TaskID)
	}
	if err != nil {
		tr.degrade("medal", err)
		logger.Warn("task.medal.failed", "user_id", task.UserID, "day", task.DeadlineDate, "err", err)
	} else {
		tr.reached("medal")
	}

	// leaderboard
	if err := s.board.Publish(ctx, u); err != nil {
		tr.degrade("leaderboard", err)
		logger.Warn("task.leaderboard.failed", "user_id", task.UserID, "err", err)
	} else {
		tr.reached("leaderboard")
	}
	return u, nil
}
