package service

import (
	"context"
	"time"

	"skillup/internal/game"
	"skillup/internal/logger"
	"skillup/internal/model"
	"skillup/internal/repo"

	"golang.org/x/sync/errgroup"
)

// ReconcileReport summarizes what a repair run changed for one user.
type ReconcileReport struct {
	UserID        string `json:"user_id"`
	Score         int    `json:"score"`
	NTasksDone    int    `json:"n_tasks_done"`
	PlansFixed    int    `json:"plans_fixed"`
	ActiveAdded   int    `json:"active_added"`
	ActiveRemoved int    `json:"active_removed"`
	Events        int64  `json:"events"`
}

// ReconcileService recomputes derived counters from the task rows, which are the source
// of truth after a partially applied operation.
type ReconcileService struct {
	plans  repo.PlanRepo
	tasks  repo.TaskRepo
	users  repo.UserRepo
	events repo.EventRepo
	board  *ScoreboardService
	now    func() time.Time
}

func NewReconcileService(stores *repo.Stores, board *ScoreboardService) *ReconcileService {
	return &ReconcileService{
		plans:  stores.Plans,
		tasks:  stores.Tasks,
		users:  stores.Users,
		events: stores.Events,
		board:  board,
		now:    time.Now,
	}
}

func (s *ReconcileService) Reconcile(ctx context.Context, userID string) (*ReconcileReport, error) {
	rep := &ReconcileReport{UserID: userID}

	score, done, err := s.tasks.CompletedTotals(ctx, userID)
	if err != nil {
		return nil, storeErr("sum completed tasks", err)
	}
	u, err := s.users.SetTotals(ctx, userID, score, done)
	if err != nil {
		return nil, storeErr("set user totals", err)
	}
	rep.Score, rep.NTasksDone = u.Score, u.NTasksDone

	plans, err := s.plans.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list plans", err)
	}
	want := make(map[string]bool, len(plans))
	for _, p := range plans {
		fixed, active, err := s.fixPlan(ctx, &p)
		if err != nil {
			return nil, err
		}
		if fixed {
			rep.PlansFixed++
		}
		if active {
			want[p.PlanID] = true
		}
	}

	have, err := s.users.ActivePlanIDs(ctx, userID)
	if err != nil {
		return nil, storeErr("list active plans", err)
	}
	for _, id := range have {
		if want[id] {
			delete(want, id)
			continue
		}
		if err := s.users.RemoveActivePlan(ctx, userID, id); err != nil {
			return nil, storeErr("remove active plan", err)
		}
		rep.ActiveRemoved++
	}
	for id := range want {
		if err := s.users.AddActivePlan(ctx, userID, id); err != nil {
			return nil, storeErr("add active plan", err)
		}
		rep.ActiveAdded++
	}

	if err := s.board.Publish(ctx, u); err != nil {
		return nil, storeErr("publish score", err)
	}
	if rep.Events, err = s.events.MarkRepaired(ctx, userID); err != nil {
		return nil, storeErr("mark events", err)
	}

	logger.Info("reconcile.user.ok", "user_id", userID, "score", rep.Score, "plans_fixed", rep.PlansFixed,
		"active_added", rep.ActiveAdded, "active_removed", rep.ActiveRemoved, "events", rep.Events)
	return rep, nil
}

// fixPlan aligns the plan's progress with its live batch and reports whether the plan
// belongs in the active set afterwards.
func (s *ReconcileService) fixPlan(ctx context.Context, p *model.Plan) (bool, bool, error) {
	if p.Deleted {
		return false, false, nil
	}
	counts, err := s.tasks.CountBatch(ctx, p.UserID, p.PlanID, p.Batch)
	if err != nil {
		return false, false, storeErr("count plan tasks", err)
	}

	var fixed, active bool
	_, err = s.plans.Mutate(ctx, p.UserID, p.PlanID, func(cur *model.Plan) (map[string]any, error) {
		fixed, active = false, cur.Active()
		if cur.Deleted || cur.Batch != p.Batch {
			return nil, nil
		}
		changes := map[string]any{}
		if cur.NTasksDone != counts.Done {
			changes["n_tasks_done"] = counts.Done
		}
		complete := cur.NTasks > 0 && counts.Done >= cur.NTasks
		switch {
		case complete && cur.CompletedAt == nil:
			changes["completed_at"] = s.now().UTC()
		case !complete && cur.CompletedAt != nil:
			changes["completed_at"] = nil
		}
		active = !complete
		if len(changes) == 0 {
			return nil, nil
		}
		fixed = true
		return changes, nil
	})
	if err != nil {
		return false, false, storeErr("fix plan", err)
	}
	return fixed, active, nil
}

// ReconcileUnsettled repairs every user with ledger events that did not settle within the
// grace period, at most parallel users at a time. It returns the number of users repaired.
func (s *ReconcileService) ReconcileUnsettled(ctx context.Context, grace time.Duration, limit, parallel int) (int, error) {
	events, err := s.events.Unsettled(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, storeErr("scan ledger events", err)
	}
	seen := make(map[string]bool)
	var users []string
	for _, ev := range events {
		if !seen[ev.UserID] {
			seen[ev.UserID] = true
			users = append(users, ev.UserID)
		}
	}
	if parallel <= 0 {
		parallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, id := range users {
		id := id
		g.Go(func() error {
			_, err := s.Reconcile(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(users), nil
}

// RebuildLeaderboard replaces the cached board from the users table.
func (s *ReconcileService) RebuildLeaderboard(ctx context.Context) ([]game.Entry, error) {
	items, err := s.board.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("reconcile.leaderboard.ok", "entries", len(items))
	return items, nil
}
