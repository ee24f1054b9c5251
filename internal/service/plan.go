package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skillup/internal/game"
	"skillup/internal/logger"
	"skillup/internal/model"
	"skillup/internal/repo"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const defaultLevel = "beginner"

var errOvertaken = errors.New("plan replanned concurrently")

// PlanService creates plans from oracle drafts and regenerates them, whole or one task
// at a time.
type PlanService struct {
	plans      repo.PlanRepo
	tasks      repo.TaskRepo
	users      repo.UserRepo
	oracle     Oracle
	rules      game.Rules
	completion *CompletionService
}

func NewPlanService(stores *repo.Stores, oracle Oracle, rules game.Rules, completion *CompletionService) *PlanService {
	return &PlanService{
		plans:      stores.Plans,
		tasks:      stores.Tasks,
		users:      stores.Users,
		oracle:     oracle,
		rules:      rules,
		completion: completion,
	}
}

func (s *PlanService) CreatePlan(ctx context.Context, userID, username, goal string) (*model.PlanResponse, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: empty goal", ErrBadRequest)
	}
	if err := s.users.Ensure(ctx, userID, username); err != nil {
		return nil, storeErr("ensure user", err)
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, storeErr("load user", err)
	}

	draft, err := s.generate(ctx, goal, u, nil)
	if err != nil {
		return nil, err
	}

	planID := uuid.NewString()
	tasks := s.buildTasks(userID, planID, 1, draft.Tasks)
	if err := s.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, storeErr("insert tasks", err)
	}
	p := &model.Plan{
		PlanID:     planID,
		UserID:     userID,
		Goal:       goal,
		NTasks:     len(tasks),
		NextTaskID: len(tasks) + 1,
		Batch:      1,
		Prompts:    datatypes.JSONSlice[string]{draft.Prompt},
		Responses:  datatypes.JSONSlice[string]{draft.Response},
	}
	if err := s.plans.Create(ctx, p); err != nil {
		return nil, storeErr("insert plan", err)
	}
	if err := s.users.AddActivePlan(ctx, userID, planID); err != nil {
		return nil, storeErr("add active plan", err)
	}
	if err := s.users.IncPlans(ctx, userID); err != nil {
		logger.Warn("plan.create.count_failed", "user_id", userID, "err", err)
	}

	logger.Info("plan.create.ok", "user_id", userID, "plan_id", planID, "n_tasks", len(tasks))
	return &model.PlanResponse{PlanID: planID, Tasks: tasks}, nil
}

// Replan swaps the plan's pending tasks for a freshly generated batch. Completed tasks of
// earlier batches stay credited.
func (s *PlanService) Replan(ctx context.Context, userID, planID, goal string) (*model.PlanResponse, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: empty goal", ErrBadRequest)
	}
	p, err := s.livePlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}

	draft, err := s.generate(ctx, goal, s.profile(ctx, userID), history(p))
	if err != nil {
		return nil, err
	}

	first, err := s.plans.ReserveTaskIDs(ctx, userID, planID, len(draft.Tasks))
	if err != nil {
		return nil, storeErr("reserve task ids", err)
	}
	if _, err := s.tasks.SoftDeletePending(ctx, userID, planID, first); err != nil {
		return nil, storeErr("retire pending tasks", err)
	}
	tasks := s.buildTasks(userID, planID, first, draft.Tasks)
	if err := s.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, storeErr("insert tasks", err)
	}

	_, err = s.plans.Mutate(ctx, userID, planID, func(cur *model.Plan) (map[string]any, error) {
		if cur.Deleted {
			return nil, repo.ErrNotFound
		}
		if cur.Batch > first {
			return nil, errOvertaken
		}
		return map[string]any{
			"goal":         goal,
			"n_tasks":      len(tasks),
			"n_tasks_done": 0,
			"n_replans":    cur.NReplans + 1,
			"completed_at": nil,
			"batch":        first,
			"next_task_id": max(cur.NextTaskID, first+len(tasks)),
			"prompts":      datatypes.NewJSONSlice(append([]string(cur.Prompts), draft.Prompt)),
			"responses":    datatypes.NewJSONSlice(append([]string(cur.Responses), draft.Response)),
		}, nil
	})
	if err != nil {
		if _, derr := s.tasks.SoftDeleteBatch(ctx, userID, planID, first); derr != nil {
			logger.Error("plan.replan.rollback_failed", "user_id", userID, "plan_id", planID, "batch", first, "err", derr)
		}
		if errors.Is(err, errOvertaken) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, storeErr("update plan", err)
	}

	// a slower replan may have inserted its batch after the first sweep
	if _, err := s.tasks.SoftDeletePending(ctx, userID, planID, first); err != nil {
		logger.Warn("plan.replan.sweep_failed", "user_id", userID, "plan_id", planID, "err", err)
	}
	if err := s.users.AddActivePlan(ctx, userID, planID); err != nil {
		return nil, storeErr("add active plan", err)
	}

	logger.Info("plan.replan.ok", "user_id", userID, "plan_id", planID, "batch", first, "n_tasks", len(tasks))
	return &model.PlanResponse{PlanID: planID, Tasks: tasks}, nil
}

// Retask regenerates one task in place, keeping its id.
func (s *PlanService) Retask(ctx context.Context, userID, planID string, taskID int, reason string) (*model.RetaskResponse, error) {
	p, err := s.livePlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	key := model.TaskKey{UserID: userID, PlanID: planID, TaskID: taskID}
	task, err := s.tasks.Get(ctx, key)
	if err != nil {
		return nil, storeErr("load task", err)
	}

	u := s.profile(ctx, userID)
	prev := TaskDraft{
		Title:        task.Title,
		Description:  task.Description,
		Difficulty:   string(task.Difficulty),
		DeadlineDate: task.DeadlineDate,
	}
	nd, err := s.oracle.RegenerateOneTask(ctx, p.Goal, u.Level, prev, history(p), reason)
	if err != nil {
		return nil, gatewayErr("regenerate task", err)
	}
	content, err := s.retaskContent(task, nd)
	if err != nil {
		return nil, err
	}

	if task.CompletedAt != nil {
		if _, err := s.completion.UndoTask(ctx, userID, planID, taskID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	updated, err := s.tasks.Rewrite(ctx, key, content)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: task %d changed during retask", ErrConflict, taskID)
	}
	if err != nil {
		return nil, storeErr("rewrite task", err)
	}

	note := fmt.Sprintf("[task %d modified: %s]", taskID, strings.TrimSpace(reason))
	var newPrompt string
	_, err = s.plans.Mutate(ctx, userID, planID, func(cur *model.Plan) (map[string]any, error) {
		prompts := append([]string(nil), cur.Prompts...)
		if len(prompts) == 0 {
			prompts = append(prompts, note)
		} else {
			prompts[len(prompts)-1] += "\n" + note
		}
		newPrompt = prompts[len(prompts)-1]
		return map[string]any{"prompts": datatypes.NewJSONSlice(prompts)}, nil
	})
	if err != nil {
		return nil, storeErr("annotate plan", err)
	}

	logger.Info("plan.retask.ok", "user_id", userID, "plan_id", planID, "task_id", taskID)
	return &model.RetaskResponse{NewPrompt: newPrompt, NewTask: *updated}, nil
}

// DeletePlan soft-deletes the plan and its pending tasks. Completed tasks stay credited.
func (s *PlanService) DeletePlan(ctx context.Context, userID, planID string) error {
	_, err := s.plans.Mutate(ctx, userID, planID, func(cur *model.Plan) (map[string]any, error) {
		if cur.Deleted {
			return nil, repo.ErrNotFound
		}
		return map[string]any{"deleted": true}, nil
	})
	if err != nil {
		return storeErr("delete plan", err)
	}
	if _, err := s.tasks.SoftDeletePending(ctx, userID, planID, 0); err != nil {
		return storeErr("delete tasks", err)
	}
	if err := s.users.RemoveActivePlan(ctx, userID, planID); err != nil {
		return storeErr("remove active plan", err)
	}
	logger.Info("plan.delete.ok", "user_id", userID, "plan_id", planID)
	return nil
}

func (s *PlanService) ListActivePlans(ctx context.Context, userID string) ([]model.PlanWithTasks, error) {
	plans, err := s.plans.ListActive(ctx, userID)
	if err != nil {
		return nil, storeErr("list active plans", err)
	}
	out := make([]model.PlanWithTasks, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range plans {
		i := i
		g.Go(func() error {
			tasks, err := s.tasks.ListByPlan(gctx, userID, plans[i].PlanID)
			if err != nil {
				return err
			}
			if tasks == nil {
				tasks = []model.Task{}
			}
			out[i] = model.PlanWithTasks{Plan: plans[i], Tasks: tasks}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr("list plan tasks", err)
	}
	return out, nil
}

func (s *PlanService) livePlan(ctx context.Context, userID, planID string) (*model.Plan, error) {
	p, err := s.plans.Get(ctx, userID, planID)
	if err != nil {
		return nil, storeErr("load plan", err)
	}
	if p.Deleted {
		return nil, fmt.Errorf("%w: plan %s deleted", ErrNotFound, planID)
	}
	return p, nil
}

// profile returns the stored user or a default one when the row is missing.
func (s *PlanService) profile(ctx context.Context, userID string) *model.User {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return &model.User{UserID: userID, Level: defaultLevel}
	}
	if u.Level == "" {
		u.Level = defaultLevel
	}
	return u
}

func (s *PlanService) generate(ctx context.Context, goal string, u *model.User, hist []HistoryTurn) (*Draft, error) {
	level := u.Level
	if level == "" {
		level = defaultLevel
	}
	profile := map[string]any{
		"user_id":      u.UserID,
		"username":     u.Username,
		"level":        level,
		"score":        u.Score,
		"n_tasks_done": u.NTasksDone,
		"n_plans":      u.NPlans,
	}
	draft, err := s.oracle.GenerateTasks(ctx, goal, level, hist, profile)
	if err != nil {
		return nil, gatewayErr("generate tasks", err)
	}
	draft.Tasks = normalizeDrafts(draft.Tasks)
	if len(draft.Tasks) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBadGateway, errNoDrafts)
	}
	return draft, nil
}

func (s *PlanService) buildTasks(userID, planID string, first int, drafts []TaskDraft) []model.Task {
	tasks := make([]model.Task, 0, len(drafts))
	for i, d := range drafts {
		diff, _ := game.ParseDifficulty(d.Difficulty)
		tasks = append(tasks, model.Task{
			UserID:       userID,
			PlanID:       planID,
			TaskID:       first + i,
			Batch:        first,
			Title:        d.Title,
			Description:  d.Description,
			Difficulty:   diff,
			Score:        s.rules.Score(diff),
			DeadlineDate: d.DeadlineDate,
		})
	}
	return tasks
}

func (s *PlanService) retaskContent(old *model.Task, nd *TaskDraft) (repo.TaskContent, error) {
	title := strings.TrimSpace(nd.Title)
	desc := strings.TrimSpace(nd.Description)
	if title == "" || desc == "" {
		return repo.TaskContent{}, fmt.Errorf("%w: regenerated task has empty text", ErrBadGateway)
	}
	day, ok := game.ParseDay(nd.DeadlineDate)
	if !ok {
		day = old.DeadlineDate
	}
	diff, ok := game.ParseDifficulty(nd.Difficulty)
	if !ok {
		logger.Warn("oracle.draft.difficulty", "value", nd.Difficulty, "task_id", old.TaskID)
	}
	return repo.TaskContent{
		Title:        title,
		Description:  desc,
		Difficulty:   diff,
		Score:        s.rules.Score(diff),
		DeadlineDate: day,
	}, nil
}

func history(p *model.Plan) []HistoryTurn {
	turns := make([]HistoryTurn, 0, len(p.Prompts))
	for i, prompt := range p.Prompts {
		t := HistoryTurn{Prompt: prompt}
		if i < len(p.Responses) {
			t.Response = p.Responses[i]
		}
		turns = append(turns, t)
	}
	return turns
}

func gatewayErr(op string, err error) error {
	if errors.Is(err, ErrBadGateway) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBadGateway, op, err)
}
