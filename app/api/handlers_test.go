package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wangx-create/TRNNew/app/database"
	"github.com/Wangx-create/TRNNew/app/news"
	"github.com/Wangx-create/TRNNew/app/runner"
)

const testAPIKey = "test-key"

// fakeTaskRepo is an in-memory TaskRepository.
type fakeTaskRepo struct {
	tasks map[string]database.Task
	execs map[string][]database.TaskExecution
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		tasks: make(map[string]database.Task),
		execs: make(map[string][]database.TaskExecution),
	}
}

func (f *fakeTaskRepo) CreateTask(task database.Task) error {
	if task.Status == "" {
		task.Status = database.TaskStatusActive
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskRepo) GetTask(id string) (*database.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (f *fakeTaskRepo) ListTasks(userID, status string) ([]database.Task, error) {
	var out []database.Task
	for _, task := range f.tasks {
		if task.UserID != userID {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (f *fakeTaskRepo) UpdateTask(task database.Task) error {
	if _, ok := f.tasks[task.ID]; !ok {
		return fmt.Errorf("task '%s' not found", task.ID)
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskRepo) UpdateTaskStatus(id, status string) error {
	task, ok := f.tasks[id]
	if !ok {
		return fmt.Errorf("task '%s' not found", id)
	}
	task.Status = status
	f.tasks[id] = task
	return nil
}

func (f *fakeTaskRepo) DeleteTask(id string) error {
	delete(f.tasks, id)
	delete(f.execs, id)
	return nil
}

func (f *fakeTaskRepo) GetTaskCount() (int, error) {
	return len(f.tasks), nil
}

func (f *fakeTaskRepo) AddExecution(exec database.TaskExecution) (int64, error) {
	f.execs[exec.TaskID] = append(f.execs[exec.TaskID], exec)
	return int64(len(f.execs[exec.TaskID])), nil
}

func (f *fakeTaskRepo) GetExecutions(taskID string, limit int) ([]database.TaskExecution, error) {
	return f.execs[taskID], nil
}

func (f *fakeTaskRepo) GetLatestExecution(taskID string) (*database.TaskExecution, error) {
	execs := f.execs[taskID]
	if len(execs) == 0 {
		return nil, nil
	}
	return &execs[len(execs)-1], nil
}

func (f *fakeTaskRepo) GetExecutionCount() (int, error) {
	total := 0
	for _, execs := range f.execs {
		total += len(execs)
	}
	return total, nil
}

// fakeHistoryRepo is an empty HistoryRepository.
type fakeHistoryRepo struct{}

func (fakeHistoryRepo) SeenKeys(string) (map[news.HistoryKey]time.Time, error) {
	return map[news.HistoryKey]time.Time{}, nil
}

func (fakeHistoryRepo) RecordRun(string, string, []news.HistoryKey, time.Time) error {
	return nil
}

func (fakeHistoryRepo) GetSignatureCount() (int, error) { return 0, nil }
func (fakeHistoryRepo) GetIdentityCount() (int, error)  { return 0, nil }

// fakeFetcher serves one fixed board for every platform and round.
type fakeFetcher struct {
	items []news.RawItem
}

func (f *fakeFetcher) Fetch(ctx context.Context, platformID string, round int) ([]news.RawItem, error) {
	out := make([]news.RawItem, len(f.items))
	for i, item := range f.items {
		item.Platform = platformID
		out[i] = item
	}
	return out, nil
}

type fakeRenderer struct {
	path string
	err  error
}

func (f *fakeRenderer) Run(result *runner.Result) (string, error) {
	return f.path, f.err
}

type testEnv struct {
	server   http.Handler
	taskRepo *fakeTaskRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := news.NewSnapshotStore(filepath.Join(t.TempDir(), "snapshot.yml"))
	baseline := news.Snapshot{
		Groups:    []news.KeywordGroup{{Label: "baseline", Terms: []string{"baseline"}}},
		Platforms: []string{"weibo"},
		Mode:      news.ModeDaily,
	}
	if err := store.Save(baseline); err != nil {
		t.Fatalf("Failed to seed baseline: %v", err)
	}

	fetcher := &fakeFetcher{items: []news.RawItem{
		{Title: "OpenAI发布AI模型", URL: "https://example.com/1", Rank: 1},
		{Title: "AI广告推广", Rank: 2},
		{Title: "今日天气预报", Rank: 3},
	}}

	taskRepo := newFakeTaskRepo()
	run := runner.New(store, fetcher, fakeHistoryRepo{}, runner.Options{})
	handler := NewHandler(taskRepo, fakeHistoryRepo{}, run, &fakeRenderer{path: "/out/report.html"}, "test")

	return &testEnv{
		server:   NewServer(handler, testAPIKey),
		taskRepo: taskRepo,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testAPIKey)
	}

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createTask(t *testing.T) string {
	t.Helper()

	w := e.request(t, "POST", "/api/tasks", map[string]interface{}{
		"name":     "AI tracker",
		"user_id":  "user-1",
		"keywords": []string{"AI"},
		"filters":  []string{"广告"},
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateTask returned %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse create response: %v", err)
	}
	return resp["id"].(string)
}

func TestHandlers_AuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/tasks?user_id=user-1", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without API key, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/tasks?user_id=user-1", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected Bearer auth to be accepted, got %d", rec.Code)
	}
}

func TestHandlers_HealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("Expected public health endpoint, got %d", w.Code)
	}
}

func TestHandlers_CreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []map[string]interface{}{
		{"user_id": "user-1", "keywords": []string{"AI"}},              // no name
		{"name": "x", "keywords": []string{"AI"}},                     // no user
		{"name": "x", "user_id": "user-1"},                            // no keywords
		{"name": "x", "user_id": "u", "keywords": []string{"AI"}, "report_mode": "hourly"},
	}

	for i, body := range cases {
		w := env.request(t, "POST", "/api/tasks", body, true)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Case %d: expected 400, got %d", i, w.Code)
		}
	}
}

func TestHandlers_TaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t)

	w := env.request(t, "GET", "/api/tasks/"+id, nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("GetTask returned %d", w.Code)
	}

	w = env.request(t, "PUT", "/api/tasks/"+id, map[string]interface{}{
		"name":   "Renamed",
		"status": "paused",
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("UpdateTask returned %d: %s", w.Code, w.Body.String())
	}

	task, _ := env.taskRepo.GetTask(id)
	if task.Name != "Renamed" || task.Status != database.TaskStatusPaused {
		t.Errorf("Partial update did not apply: %+v", task)
	}
	if len(task.Keywords) != 1 || task.Keywords[0] != "AI" {
		t.Errorf("Partial update must not clear untouched fields: %+v", task.Keywords)
	}

	w = env.request(t, "DELETE", "/api/tasks/"+id, nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("DeleteTask returned %d", w.Code)
	}

	w = env.request(t, "GET", "/api/tasks/"+id, nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestHandlers_RunTask(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t)

	w := env.request(t, "POST", "/api/tasks/"+id+"/run", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("RunTask returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool       `json:"success"`
		RunID   string     `json:"run_id"`
		Links   []linkItem `json:"links"`
		Stats   struct {
			MatchedRecords int `json:"matched_records"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse run response: %v", err)
	}

	if !resp.Success || resp.RunID == "" {
		t.Errorf("Unexpected run response: %s", w.Body.String())
	}
	// The filtered ad item and the unmatched weather item must not surface
	if len(resp.Links) != 1 || resp.Links[0].Title != "OpenAI发布AI模型" {
		t.Errorf("Unexpected links: %+v", resp.Links)
	}
	if resp.Links[0].Keyword != "AI" {
		t.Errorf("Expected keyword attribution, got '%s'", resp.Links[0].Keyword)
	}

	execs := env.taskRepo.execs[id]
	if len(execs) != 1 {
		t.Fatalf("Expected 1 recorded execution, got %d", len(execs))
	}
	if execs[0].Status != database.ExecutionStatusSuccess || execs[0].RunID != resp.RunID {
		t.Errorf("Execution record does not match run: %+v", execs[0])
	}
}

func TestHandlers_RunTaskWithHTML(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t)

	w := env.request(t, "POST", "/api/tasks/"+id+"/run",
		map[string]interface{}{"generate_html": true}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("RunTask returned %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse run response: %v", err)
	}
	if resp["html_path"] != "/out/report.html" {
		t.Errorf("Expected html_path in response, got %v", resp["html_path"])
	}

	execs := env.taskRepo.execs[id]
	if len(execs) != 1 || execs[0].HTMLPath != "/out/report.html" {
		t.Errorf("Execution record missing artifact path: %+v", execs)
	}
}

func TestHandlers_RunMissingTask(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "POST", "/api/tasks/ghost/run", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing task, got %d", w.Code)
	}
}

func TestHandlers_RunArchivedTask(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t)

	if err := env.taskRepo.UpdateTaskStatus(id, database.TaskStatusArchived); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	w := env.request(t, "POST", "/api/tasks/"+id+"/run", nil, true)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for archived task, got %d", w.Code)
	}
}

func TestHandlers_Search(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "POST", "/api/search", map[string]interface{}{
		"keywords": []string{"AI"},
		"filters":  []string{"广告"},
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Search returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Links []linkItem `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse search response: %v", err)
	}
	if len(resp.Links) != 1 {
		t.Errorf("Expected 1 link, got %d", len(resp.Links))
	}

	// Ad-hoc searches leave no execution records behind
	count, _ := env.taskRepo.GetExecutionCount()
	if count != 0 {
		t.Errorf("Search must not record executions, got %d", count)
	}
}

func TestHandlers_SearchValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "POST", "/api/search", map[string]interface{}{
		"keywords": []string{},
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty keywords, got %d", w.Code)
	}
}

func TestHandlers_BaselineRoundtrip(t *testing.T) {
	env := newTestEnv(t)

	next := map[string]interface{}{
		"groups":    []map[string]interface{}{{"label": "chips", "terms": []string{"chip"}}},
		"filters":   []string{},
		"platforms": []string{"zhihu"},
		"mode":      "incremental",
	}

	w := env.request(t, "PUT", "/api/baseline", next, true)
	if w.Code != http.StatusOK {
		t.Fatalf("PutBaseline returned %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, "GET", "/api/baseline", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("GetBaseline returned %d", w.Code)
	}

	var snap news.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Failed to parse baseline: %v", err)
	}
	if len(snap.Groups) != 1 || snap.Groups[0].Label != "chips" {
		t.Errorf("Baseline did not roundtrip: %+v", snap)
	}
}

func TestHandlers_PutBaselineRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "PUT", "/api/baseline", map[string]interface{}{
		"groups": []map[string]interface{}{},
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid baseline, got %d", w.Code)
	}
}

func TestHandlers_TaskFallsBackToBaselinePlatforms(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t) // task has no platforms of its own

	w := env.request(t, "POST", "/api/tasks/"+id+"/run", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("RunTask returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Links []linkItem `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse run response: %v", err)
	}
	if len(resp.Links) != 1 || resp.Links[0].Platform != "weibo" {
		t.Errorf("Expected baseline platform fallback, got %+v", resp.Links)
	}
}
