package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"skillup/internal/game"
	"skillup/internal/logger"
)

// HistoryTurn is one prompt/response pair of a plan's generation history.
type HistoryTurn struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// TaskDraft is a task as the oracle proposes it, before validation.
type TaskDraft struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Difficulty   string `json:"difficulty"`
	DeadlineDate string `json:"deadline_date,omitempty"`
}

type Draft struct {
	Tasks    []TaskDraft
	Prompt   string
	Response string
}

// Oracle drafts task content. Implementations must not touch storage.
type Oracle interface {
	GenerateTasks(ctx context.Context, goal, level string, history []HistoryTurn, profile map[string]any) (*Draft, error)
	RegenerateOneTask(ctx context.Context, goal, level string, previous TaskDraft, history []HistoryTurn, reason string) (*TaskDraft, error)
}

// OracleClient talks JSON over HTTP to the generation server.
type OracleClient struct {
	baseURL    string
	token      string
	maxRetries int
	backoff    time.Duration
	client     *http.Client
}

func NewOracleClient(baseURL, token string, timeout time.Duration, maxRetries int) *OracleClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &OracleClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		maxRetries: maxRetries,
		backoff:    300 * time.Millisecond,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *OracleClient) GenerateTasks(ctx context.Context, goal, level string, history []HistoryTurn, profile map[string]any) (*Draft, error) {
	if history == nil {
		history = []HistoryTurn{}
	}
	body := map[string]any{
		"goal":      goal,
		"level":     level,
		"history":   history,
		"user_info": profile,
	}
	var out struct {
		Tasks    map[string]TaskDraft `json:"tasks"`
		Prompt   string               `json:"prompt"`
		Response string               `json:"response"`
	}
	if err := c.post(ctx, "/generate-tasks", body, &out); err != nil {
		return nil, err
	}
	d := &Draft{Prompt: out.Prompt, Response: out.Response}
	for day, t := range out.Tasks {
		t.DeadlineDate = day
		d.Tasks = append(d.Tasks, t)
	}
	return d, nil
}

func (c *OracleClient) RegenerateOneTask(ctx context.Context, goal, level string, previous TaskDraft, history []HistoryTurn, reason string) (*TaskDraft, error) {
	prev, err := json.Marshal(previous)
	if err != nil {
		return nil, fmt.Errorf("encode previous task: %w", err)
	}
	lastResponse := ""
	if len(history) > 0 {
		lastResponse = history[len(history)-1].Response
	}
	body := map[string]any{
		"goal":                goal,
		"level":               level,
		"previous_task":       string(prev),
		"llm_response":        lastResponse,
		"modification_reason": reason,
	}
	var out TaskDraft
	if err := c.post(ctx, "/replan-task", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *OracleClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode oracle request: %w", ErrInternal, err)
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: oracle %s: %w", ErrBadGateway, path, ctx.Err())
			case <-time.After(c.backoff * time.Duration(1<<uint(i-1))):
			}
		}

		data, status, err := c.do(ctx, path, payload)
		if err != nil {
			lastErr = err
			logger.Warn("oracle.retry", "path", path, "attempt", i+1, "err", err)
			continue
		}
		if retryable(status) {
			lastErr = fmt.Errorf("oracle status %d", status)
			logger.Warn("oracle.retry", "path", path, "attempt", i+1, "status", status)
			continue
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: oracle status %d: %s", ErrBadGateway, status, snippet(data))
		}
		return decodeOracle(data, out)
	}
	return fmt.Errorf("%w: oracle %s: %w", ErrBadGateway, path, lastErr)
}

func (c *OracleClient) do(ctx context.Context, path string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeOracle(data []byte, out any) error {
	var reported struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &reported) == nil {
		if msg := reported.Error + reported.Detail; msg != "" {
			return fmt.Errorf("%w: oracle reported: %s", ErrBadGateway, msg)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode oracle response: %w", ErrBadGateway, err)
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}

// normalizeDrafts keeps drafts with a usable day and non-empty text, one per day,
// ordered by day. Unknown difficulties become easy.
func normalizeDrafts(drafts []TaskDraft) []TaskDraft {
	byDay := make(map[string]TaskDraft, len(drafts))
	for _, d := range drafts {
		day, ok := game.ParseDay(d.DeadlineDate)
		if !ok {
			logger.Warn("oracle.draft.drop", "reason", "deadline", "value", d.DeadlineDate)
			continue
		}
		d.Title = strings.TrimSpace(d.Title)
		d.Description = strings.TrimSpace(d.Description)
		if d.Title == "" || d.Description == "" {
			logger.Warn("oracle.draft.drop", "reason", "empty", "day", day)
			continue
		}
		diff, ok := game.ParseDifficulty(d.Difficulty)
		if !ok {
			logger.Warn("oracle.draft.difficulty", "value", d.Difficulty, "day", day)
		}
		d.Difficulty = string(diff)
		d.DeadlineDate = day
		if _, dup := byDay[day]; !dup {
			byDay[day] = d
		}
	}
	out := make([]TaskDraft, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineDate < out[j].DeadlineDate })
	return out
}

var errNoDrafts = errors.New("oracle returned no usable tasks")
