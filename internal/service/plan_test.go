package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"skillup/internal/game"
	"skillup/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.oracle.drafts = []TaskDraft{
		{Title: "late", Description: "x", Difficulty: "HARD", DeadlineDate: "2025-03-05T09:00:00"},
		{Title: "early", Description: "x", Difficulty: "legendary", DeadlineDate: "2025-03-01"},
		{Title: "bad date", Description: "x", Difficulty: "easy", DeadlineDate: "someday"},
		{Title: "", Description: "x", Difficulty: "easy", DeadlineDate: "2025-03-02"},
	}

	resp, err := e.plans.CreatePlan(ctx, "u1", "alice", "run a marathon")
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, "early", resp.Tasks[0].Title)
	assert.Equal(t, 1, resp.Tasks[0].TaskID)
	assert.Equal(t, game.Easy, resp.Tasks[0].Difficulty)
	assert.Equal(t, "late", resp.Tasks[1].Title)
	assert.Equal(t, 2, resp.Tasks[1].TaskID)
	assert.Equal(t, "2025-03-05", resp.Tasks[1].DeadlineDate)
	assert.Equal(t, 50, resp.Tasks[1].Score)

	p := e.plan(t, "u1", resp.PlanID)
	assert.Equal(t, 2, p.NTasks)
	assert.Equal(t, 3, p.NextTaskID)
	assert.Equal(t, "run a marathon", p.Goal)
	assert.Equal(t, []string{"prompt: run a marathon"}, []string(p.Prompts))
	assert.Equal(t, []string{p.PlanID}, e.activeIDs(t, "u1"))

	u := e.user(t, "u1")
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, 1, u.NPlans)
}

func TestCreatePlanRejects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.plans.CreatePlan(ctx, "u1", "alice", "   ")
	assert.ErrorIs(t, err, ErrBadRequest)

	e.oracle.drafts = []TaskDraft{{Title: "x", Description: "", DeadlineDate: "2025-03-01"}}
	_, err = e.plans.CreatePlan(ctx, "u1", "alice", "goal")
	assert.ErrorIs(t, err, ErrBadGateway)

	e.oracle.err = errors.New("connection refused")
	_, err = e.plans.CreatePlan(ctx, "u1", "alice", "goal")
	assert.ErrorIs(t, err, ErrBadGateway)

	assert.Empty(t, e.activeIDs(t, "u1"))
}

func TestCreatePlanUsernameClash(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.plans.CreatePlan(ctx, "u1", "alice", "learn go")
	require.NoError(t, err)

	_, err = e.plans.CreatePlan(ctx, "u2", "alice", "learn go")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, e.activeIDs(t, "u2"))
}

func TestReplanAllocatesFreshIDs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	_, err := e.completion.CompleteTask(ctx, "u1", p.PlanID, 2, "")
	require.NoError(t, err)

	e.oracle.drafts = []TaskDraft{
		{Title: "x", Description: "x", Difficulty: "easy", DeadlineDate: "2025-04-01"},
		{Title: "y", Description: "y", Difficulty: "easy", DeadlineDate: "2025-04-02"},
		{Title: "z", Description: "z", Difficulty: "easy", DeadlineDate: "2025-04-03"},
	}
	resp, err := e.plans.Replan(ctx, "u1", p.PlanID, "learn rust")
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 3)
	for i, task := range resp.Tasks {
		assert.Equal(t, 3+i, task.TaskID)
	}
	require.Len(t, e.oracle.lastHist, 1)
	assert.Equal(t, "prompt: learn go", e.oracle.lastHist[0].Prompt)

	plan := e.plan(t, "u1", p.PlanID)
	assert.Equal(t, 3, plan.NTasks)
	assert.Equal(t, 0, plan.NTasksDone)
	assert.Equal(t, 1, plan.NReplans)
	assert.Equal(t, 6, plan.NextTaskID)
	assert.Equal(t, 3, plan.Batch)
	assert.Equal(t, "learn rust", plan.Goal)
	assert.Len(t, plan.Prompts, 2)
	assert.Len(t, plan.Responses, 2)

	// task 1 was pending and is gone, task 2 was completed and stays credited
	_, err = e.completion.CompleteTask(ctx, "u1", p.PlanID, 1, "")
	assert.ErrorIs(t, err, ErrNotFound)
	tasks, err := e.stores.Tasks.ListByPlan(ctx, "u1", p.PlanID)
	require.NoError(t, err)
	ids := []int{}
	for _, task := range tasks {
		ids = append(ids, task.TaskID)
	}
	assert.Equal(t, []int{2, 3, 4, 5}, ids)
	e.assertScoreInvariant(t, "u1")
	assert.Equal(t, 30, e.user(t, "u1").Score)

	// undoing a task of an earlier batch leaves the live counters alone
	_, err = e.completion.UndoTask(ctx, "u1", p.PlanID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, e.plan(t, "u1", p.PlanID).NTasksDone)
	e.assertScoreInvariant(t, "u1")

	resp, err = e.plans.Replan(ctx, "u1", p.PlanID, "learn zig")
	require.NoError(t, err)
	assert.Equal(t, 6, resp.Tasks[0].TaskID)
}

func TestReplanReopensCompletedPlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	for _, id := range []int{1, 2} {
		_, err := e.completion.CompleteTask(ctx, "u1", p.PlanID, id, "")
		require.NoError(t, err)
	}
	require.NotNil(t, e.plan(t, "u1", p.PlanID).CompletedAt)
	require.Empty(t, e.activeIDs(t, "u1"))

	_, err := e.plans.Replan(ctx, "u1", p.PlanID, "more go")
	require.NoError(t, err)
	assert.Nil(t, e.plan(t, "u1", p.PlanID).CompletedAt)
	assert.Equal(t, []string{p.PlanID}, e.activeIDs(t, "u1"))
	assert.Equal(t, 40, e.user(t, "u1").Score)
}

func TestConcurrentReplansKeepOneLiveBatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.plans.Replan(ctx, "u1", p.PlanID, "goal")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.GreaterOrEqual(t, ok, 1)

	plan := e.plan(t, "u1", p.PlanID)
	tasks, err := e.stores.Tasks.ListByPlan(ctx, "u1", p.PlanID)
	require.NoError(t, err)
	require.Len(t, tasks, plan.NTasks)
	for _, task := range tasks {
		assert.Equal(t, plan.Batch, task.Batch)
		assert.Less(t, task.TaskID, plan.NextTaskID)
	}
}

func TestReplanDeletedPlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	require.NoError(t, e.plans.DeletePlan(ctx, "u1", p.PlanID))

	calls := e.oracle.calls
	_, err := e.plans.Replan(ctx, "u1", p.PlanID, "goal")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, calls, e.oracle.calls)
}

func TestRetaskPendingTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	e.oracle.retask = TaskDraft{Title: "swim", Description: "swim 1km", Difficulty: "hard", DeadlineDate: "not a date"}

	resp, err := e.plans.Retask(ctx, "u1", p.PlanID, 1, "pool is open")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NewTask.TaskID)
	assert.Equal(t, "swim", resp.NewTask.Title)
	assert.Equal(t, 50, resp.NewTask.Score)
	assert.Equal(t, "2025-03-01", resp.NewTask.DeadlineDate)
	assert.True(t, strings.HasPrefix(resp.NewPrompt, "prompt: learn go\n"))
	assert.Contains(t, resp.NewPrompt, "pool is open")
	assert.Equal(t, []string{"pool is open"}, e.oracle.reasons)

	plan := e.plan(t, "u1", p.PlanID)
	require.Len(t, plan.Prompts, 1)
	assert.Equal(t, resp.NewPrompt, plan.Prompts[0])
	assert.Equal(t, []string{"response: learn go"}, []string(plan.Responses))
}

func TestRetaskAnnotatesOnlyLatestPrompt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	replanned, err := e.plans.Replan(ctx, "u1", p.PlanID, "learn rust")
	require.NoError(t, err)
	before := e.plan(t, "u1", p.PlanID)
	require.Len(t, before.Prompts, 2)

	taskID := replanned.Tasks[0].TaskID
	e.oracle.retask = TaskDraft{Title: "swim", Description: "swim 1km", Difficulty: "hard", DeadlineDate: "2025-03-05"}
	resp, err := e.plans.Retask(ctx, "u1", p.PlanID, taskID, "pool closed")
	require.NoError(t, err)
	require.Len(t, e.oracle.lastHist, 2)

	after := e.plan(t, "u1", p.PlanID)
	require.Len(t, after.Prompts, 2)
	assert.Equal(t, before.Prompts[0], after.Prompts[0])
	assert.Equal(t, before.Prompts[1]+fmt.Sprintf("\n[task %d modified: pool closed]", taskID), after.Prompts[1])
	assert.Equal(t, after.Prompts[1], resp.NewPrompt)
	assert.Equal(t, []string(before.Responses), []string(after.Responses))
}

func TestRetaskCompletedTaskRevokesCredit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	_, err := e.completion.CompleteTask(ctx, "u1", p.PlanID, 2, "")
	require.NoError(t, err)
	e.oracle.retask = TaskDraft{Title: "new", Description: "new", Difficulty: "easy", DeadlineDate: "2025-03-09"}

	resp, err := e.plans.Retask(ctx, "u1", p.PlanID, 2, "too hard")
	require.NoError(t, err)
	assert.Nil(t, resp.NewTask.CompletedAt)
	assert.Equal(t, "2025-03-09", resp.NewTask.DeadlineDate)
	assert.Equal(t, 10, resp.NewTask.Score)

	assert.Equal(t, 0, e.user(t, "u1").Score)
	assert.Equal(t, 0, e.plan(t, "u1", p.PlanID).NTasksDone)
	e.assertScoreInvariant(t, "u1")

	score, err := e.completion.CompleteTask(ctx, "u1", p.PlanID, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 10, score)
}

func TestRetaskRejectsEmptyDraft(t *testing.T) {
	e := newEnv(t)
	p := e.createPlan(t, "u1")
	e.oracle.retask = TaskDraft{Title: " ", Description: "x"}

	_, err := e.plans.Retask(context.Background(), "u1", p.PlanID, 1, "why")
	assert.ErrorIs(t, err, ErrBadGateway)

	task, err := e.stores.Tasks.Get(context.Background(), model.TaskKey{UserID: "u1", PlanID: p.PlanID, TaskID: 1})
	require.NoError(t, err)
	assert.Equal(t, "read", task.Title)
}

func TestRetaskUnknownTask(t *testing.T) {
	e := newEnv(t)
	p := e.createPlan(t, "u1")
	_, err := e.plans.Retask(context.Background(), "u1", p.PlanID, 42, "why")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePlanKeepsCompletedCredit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	_, err := e.completion.CompleteTask(ctx, "u1", p.PlanID, 2, "")
	require.NoError(t, err)

	require.NoError(t, e.plans.DeletePlan(ctx, "u1", p.PlanID))
	assert.Empty(t, e.activeIDs(t, "u1"))
	assert.Equal(t, 30, e.user(t, "u1").Score)
	e.assertScoreInvariant(t, "u1")

	_, err = e.completion.CompleteTask(ctx, "u1", p.PlanID, 1, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// undo of the surviving completed task must not resurrect the plan
	_, err = e.completion.UndoTask(ctx, "u1", p.PlanID, 2)
	require.NoError(t, err)
	assert.Empty(t, e.activeIDs(t, "u1"))
	e.assertScoreInvariant(t, "u1")

	err = e.plans.DeletePlan(ctx, "u1", p.PlanID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActivePlans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.createPlan(t, "u1")
	b := e.createPlan(t, "u1")
	e.createPlan(t, "u2")
	require.NoError(t, e.plans.DeletePlan(ctx, "u1", a.PlanID))

	plans, err := e.plans.ListActivePlans(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, b.PlanID, plans[0].Plan.PlanID)
	assert.Len(t, plans[0].Tasks, 2)
}

func TestReconcileRepairsDrift(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.createPlan(t, "u1")
	for _, id := range []int{1, 2} {
		_, err := e.completion.CompleteTask(ctx, "u1", p.PlanID, id, "")
		require.NoError(t, err)
	}

	// simulate a crash that lost the user and plan steps of an undo
	_, err := e.stores.Tasks.MarkPending(ctx, model.TaskKey{UserID: "u1", PlanID: p.PlanID, TaskID: 1})
	require.NoError(t, err)
	_, err = e.stores.Users.SetTotals(ctx, "u1", 999, 7)
	require.NoError(t, err)

	rep, err := e.reconcile.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, rep.Score)
	assert.Equal(t, 1, rep.NTasksDone)
	assert.Equal(t, 1, rep.PlansFixed)
	assert.Equal(t, 1, rep.ActiveAdded)

	plan := e.plan(t, "u1", p.PlanID)
	assert.Equal(t, 1, plan.NTasksDone)
	assert.Nil(t, plan.CompletedAt)
	assert.Equal(t, []string{p.PlanID}, e.activeIDs(t, "u1"))
	e.assertScoreInvariant(t, "u1")

	items, err := e.board.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []game.Entry{{Username: "name-u1", Score: 30}}, items)

	rep, err = e.reconcile.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, rep.PlansFixed+rep.ActiveAdded+rep.ActiveRemoved)
}

func TestRebuildLeaderboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2"} {
		p := e.createPlan(t, u)
		_, err := e.completion.CompleteTask(ctx, u, p.PlanID, 2, "")
		require.NoError(t, err)
	}
	_, err := e.stores.Board.Replace(ctx, nil, 10)
	require.NoError(t, err)

	items, err := e.reconcile.RebuildLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []game.Entry{{Username: "name-u1", Score: 30}, {Username: "name-u2", Score: 30}}, items)
}
