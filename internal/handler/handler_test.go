package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"skillup/internal/auth"
	"skillup/internal/game"
	"skillup/internal/logger"
	"skillup/internal/model"
	"skillup/internal/repo"
	"skillup/internal/service"
	"skillup/internal/storetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Discard()
	os.Exit(m.Run())
}

type stubOracle struct{ fail bool }

func (o stubOracle) GenerateTasks(_ context.Context, goal, _ string, _ []service.HistoryTurn, _ map[string]any) (*service.Draft, error) {
	if o.fail {
		return nil, service.ErrBadGateway
	}
	return &service.Draft{
		Prompt:   goal,
		Response: "ok",
		Tasks: []service.TaskDraft{
			{Title: "one", Description: "first", Difficulty: "easy", DeadlineDate: "2025-05-01"},
			{Title: "two", Description: "second", Difficulty: "medium", DeadlineDate: "2025-05-02"},
		},
	}, nil
}

func (o stubOracle) RegenerateOneTask(context.Context, string, string, service.TaskDraft, []service.HistoryTurn, string) (*service.TaskDraft, error) {
	return &service.TaskDraft{Title: "new", Description: "new one", Difficulty: "hard"}, nil
}

type testServer struct {
	router *gin.Engine
	gate   *auth.JWTGate
}

func newTestServer(t *testing.T, oracle service.Oracle) *testServer {
	t.Helper()
	stores := repo.New(storetest.Open(t))
	rules := game.DefaultRules()
	board := service.NewScoreboardService(stores, rules)
	medals := service.NewMedalService(stores)
	completion := service.NewCompletionService(stores, medals, board)
	plans := service.NewPlanService(stores, oracle, rules, completion)
	gate := auth.NewJWTGate("test-secret")

	return &testServer{
		router: NewRouter(gate, Handlers{
			Plans: NewPlanHandler(plans),
			Tasks: NewTaskHandler(completion, plans),
			Board: NewBoardHandler(board, medals),
		}, nil),
		gate: gate,
	}
}

func (s *testServer) do(t *testing.T, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := s.gate.Sign(auth.Identity{UserID: userID, Username: "name-" + userID}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestPlanLifecycle(t *testing.T) {
	s := newTestServer(t, stubOracle{})

	w := s.do(t, "u1", http.MethodPost, "/api/plans", `{"goal":"learn go"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[model.PlanResponse](t, w)
	require.Len(t, created.Tasks, 2)
	base := "/api/plans/" + created.PlanID

	w = s.do(t, "u1", http.MethodPost, base+"/tasks/2/complete", `{"report":"done"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, decode[model.ScoreResponse](t, w).Score)

	w = s.do(t, "u1", http.MethodPost, base+"/tasks/2/complete", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, "u1", http.MethodPost, base+"/tasks/1/complete", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 40, decode[model.ScoreResponse](t, w).Score)

	w = s.do(t, "u1", http.MethodGet, "/api/plans", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.ActivePlansResponse](t, w).Plans)

	w = s.do(t, "u1", http.MethodPost, base+"/tasks/1/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, decode[model.ScoreResponse](t, w).Score)

	w = s.do(t, "u1", http.MethodGet, "/api/plans", "")
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[model.ActivePlansResponse](t, w)
	require.Len(t, active.Plans, 1)
	assert.Len(t, active.Plans[0].Tasks, 2)

	w = s.do(t, "u1", http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []game.Entry{{Username: "name-u1", Score: 30}}, decode[model.LeaderboardResponse](t, w).Items)

	w = s.do(t, "u1", http.MethodGet, "/api/medals", "")
	require.Equal(t, http.StatusOK, w.Code)
	medals := decode[model.MedalsResponse](t, w).Medals
	assert.Equal(t, []model.MedalEntry{{Grade: game.GradeGold, TaskID: 2}}, medals["2025-05-02"])

	w = s.do(t, "u1", http.MethodPost, base+"/replan", `{"goal":"learn rust"}`)
	require.Equal(t, http.StatusOK, w.Code)
	replanned := decode[model.PlanResponse](t, w)
	assert.Equal(t, 3, replanned.Tasks[0].TaskID)

	w = s.do(t, "u1", http.MethodPost, base+"/tasks/3/retask", `{"reason":"busy"}`)
	require.Equal(t, http.StatusOK, w.Code)
	retask := decode[model.RetaskResponse](t, w)
	assert.Equal(t, "new", retask.NewTask.Title)
	assert.Equal(t, "2025-05-01", retask.NewTask.DeadlineDate)
	assert.Contains(t, retask.NewPrompt, "busy")

	w = s.do(t, "u1", http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, "u1", http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, stubOracle{})

	w := s.do(t, "", http.MethodGet, "/api/plans", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, "", http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t, stubOracle{})

	w := s.do(t, "u1", http.MethodPost, "/api/plans", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "u1", http.MethodPost, "/api/plans/x/tasks/abc/complete", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "u1", http.MethodPost, "/api/plans/x/tasks/1/complete", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, "u1", http.MethodPost, "/api/plans/x/replan", `{"goal":"g"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOracleFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t, stubOracle{fail: true})

	w := s.do(t, "u1", http.MethodPost, "/api/plans", `{"goal":"learn go"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestOtherUsersPlanIsHidden(t *testing.T) {
	s := newTestServer(t, stubOracle{})

	w := s.do(t, "u1", http.MethodPost, "/api/plans", `{"goal":"learn go"}`)
	require.Equal(t, http.StatusOK, w.Code)
	created := decode[model.PlanResponse](t, w)

	w = s.do(t, "u2", http.MethodPost, "/api/plans/"+created.PlanID+"/tasks/1/complete", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, "u2", http.MethodDelete, "/api/plans/"+created.PlanID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
