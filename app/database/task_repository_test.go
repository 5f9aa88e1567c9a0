package database

import (
	"fmt"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func sampleTask(id string) Task {
	return Task{
		ID:             id,
		Name:           "AI tracker",
		UserID:         "user-1",
		Keywords:       []string{"AI", "人工智能"},
		Filters:        []string{"广告"},
		Platforms:      []string{"weibo", "zhihu"},
		Expansions:     map[string][]string{"AI": {"ChatGPT", "OpenAI"}},
		ReportMode:     "current",
		ExpandKeywords: true,
		Description:    "Tracks AI stories",
	}
}

func TestTaskRepository_CreateAndGet(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	if err := repo.CreateTask(sampleTask("task-1")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	task, err := repo.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task == nil {
		t.Fatalf("Expected task, got nil")
	}

	if task.Name != "AI tracker" || task.UserID != "user-1" {
		t.Errorf("Task fields do not match: %+v", task)
	}
	if len(task.Keywords) != 2 || task.Keywords[1] != "人工智能" {
		t.Errorf("Keywords did not roundtrip: %+v", task.Keywords)
	}
	if len(task.Expansions["AI"]) != 2 {
		t.Errorf("Expansions did not roundtrip: %+v", task.Expansions)
	}
	if task.Status != TaskStatusActive {
		t.Errorf("Expected default status active, got %s", task.Status)
	}
	if !task.ExpandKeywords {
		t.Errorf("ExpandKeywords did not roundtrip")
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Errorf("Timestamps should be set on create")
	}
}

func TestTaskRepository_GetMissingTask(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	task, err := repo.GetTask("nope")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task != nil {
		t.Errorf("Expected nil for missing task, got %+v", task)
	}
}

func TestTaskRepository_ListTasksByUserAndStatus(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	a := sampleTask("task-a")
	b := sampleTask("task-b")
	b.Status = TaskStatusPaused
	other := sampleTask("task-c")
	other.UserID = "user-2"

	for _, task := range []Task{a, b, other} {
		if err := repo.CreateTask(task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	tasks, err := repo.ListTasks("user-1", "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks for user-1, got %d", len(tasks))
	}

	paused, err := repo.ListTasks("user-1", TaskStatusPaused)
	if err != nil {
		t.Fatalf("ListTasks with status failed: %v", err)
	}
	if len(paused) != 1 || paused[0].ID != "task-b" {
		t.Errorf("Expected only the paused task, got %+v", paused)
	}
}

func TestTaskRepository_UpdateTask(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	task := sampleTask("task-1")
	if err := repo.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	task.Name = "Renamed"
	task.Keywords = []string{"chips"}
	if err := repo.UpdateTask(task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	updated, err := repo.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if updated.Name != "Renamed" || len(updated.Keywords) != 1 {
		t.Errorf("Update did not persist: %+v", updated)
	}
}

func TestTaskRepository_UpdateMissingTask(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	if err := repo.UpdateTask(sampleTask("ghost")); err == nil {
		t.Errorf("Expected error updating missing task")
	}
	if err := repo.UpdateTaskStatus("ghost", TaskStatusPaused); err == nil {
		t.Errorf("Expected error updating status of missing task")
	}
}

func TestTaskRepository_DeleteTaskCascadesExecutions(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	if err := repo.CreateTask(sampleTask("task-1")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := repo.AddExecution(TaskExecution{TaskID: "task-1", RunID: "run-1"}); err != nil {
		t.Fatalf("AddExecution failed: %v", err)
	}

	if err := repo.DeleteTask("task-1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	count, err := repo.GetExecutionCount()
	if err != nil {
		t.Fatalf("GetExecutionCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected executions to cascade on task delete, got %d", count)
	}
}

func TestTaskRepository_ExecutionRetention(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 3)

	if err := repo.CreateTask(sampleTask("task-1")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		_, err := repo.AddExecution(TaskExecution{
			TaskID: "task-1",
			RunID:  fmt.Sprintf("run-%d", i),
		})
		if err != nil {
			t.Fatalf("AddExecution %d failed: %v", i, err)
		}
	}

	execs, err := repo.GetExecutions("task-1", 0)
	if err != nil {
		t.Fatalf("GetExecutions failed: %v", err)
	}
	if len(execs) != 3 {
		t.Fatalf("Expected retention cap of 3, got %d records", len(execs))
	}
	if execs[0].RunID != "run-5" || execs[2].RunID != "run-3" {
		t.Errorf("Expected newest-first retained records, got %s..%s",
			execs[0].RunID, execs[2].RunID)
	}
}

func TestTaskRepository_GetLatestExecution(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	if err := repo.CreateTask(sampleTask("task-1")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	latest, err := repo.GetLatestExecution("task-1")
	if err != nil {
		t.Fatalf("GetLatestExecution failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil latest execution for fresh task")
	}

	for _, runID := range []string{"run-1", "run-2"} {
		if _, err := repo.AddExecution(TaskExecution{TaskID: "task-1", RunID: runID}); err != nil {
			t.Fatalf("AddExecution failed: %v", err)
		}
	}

	latest, err = repo.GetLatestExecution("task-1")
	if err != nil {
		t.Fatalf("GetLatestExecution failed: %v", err)
	}
	if latest == nil || latest.RunID != "run-2" {
		t.Errorf("Expected run-2 as latest execution, got %+v", latest)
	}
	if latest.Status != ExecutionStatusSuccess {
		t.Errorf("Expected default execution status success, got %s", latest.Status)
	}
}

func TestTaskRepository_FailedExecutionRoundtrip(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t), 20)

	if err := repo.CreateTask(sampleTask("task-1")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	_, err := repo.AddExecution(TaskExecution{
		TaskID:       "task-1",
		RunID:        "run-1",
		Status:       ExecutionStatusFailed,
		ErrorMessage: "snapshot restore failed: disk full",
	})
	if err != nil {
		t.Fatalf("AddExecution failed: %v", err)
	}

	latest, err := repo.GetLatestExecution("task-1")
	if err != nil {
		t.Fatalf("GetLatestExecution failed: %v", err)
	}
	if latest.Status != ExecutionStatusFailed {
		t.Errorf("Expected failed status, got %s", latest.Status)
	}
	if latest.ErrorMessage == "" {
		t.Errorf("Expected error message to roundtrip")
	}
}
