package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type taskRepository struct {
	db            *DB
	retainPerTask int
}

// NewTaskRepository creates a task repository retaining the most recent
// retainPerTask execution records per task.
func NewTaskRepository(db *DB, retainPerTask int) TaskRepository {
	if retainPerTask < 1 {
		retainPerTask = 20
	}
	return &taskRepository{db: db, retainPerTask: retainPerTask}
}

func (r *taskRepository) CreateTask(task Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = TaskStatusActive
	}

	_, err := r.db.Exec(`
		INSERT INTO tasks (
			id, name, user_id, keywords, filters, platforms, expansions,
			report_mode, expand_keywords, status, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Name, task.UserID,
		encodeStrings(task.Keywords), encodeStrings(task.Filters), encodeStrings(task.Platforms),
		encodeExpansions(task.Expansions),
		task.ReportMode, task.ExpandKeywords, task.Status, task.Description,
		task.CreatedAt, task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

func (r *taskRepository) GetTask(id string) (*Task, error) {
	row := r.db.QueryRow(`
		SELECT id, name, user_id, keywords, filters, platforms, expansions,
		       report_mode, expand_keywords, status, description, created_at, updated_at
		FROM tasks
		WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

func (r *taskRepository) ListTasks(userID, status string) ([]Task, error) {
	query := `
		SELECT id, name, user_id, keywords, filters, platforms, expansions,
		       report_mode, expand_keywords, status, description, created_at, updated_at
		FROM tasks
		WHERE user_id = ?`
	args := []interface{}{userID}

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

func (r *taskRepository) UpdateTask(task Task) error {
	task.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(`
		UPDATE tasks
		SET name = ?, keywords = ?, filters = ?, platforms = ?, expansions = ?,
		    report_mode = ?, expand_keywords = ?, status = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, task.Name,
		encodeStrings(task.Keywords), encodeStrings(task.Filters), encodeStrings(task.Platforms),
		encodeExpansions(task.Expansions),
		task.ReportMode, task.ExpandKeywords, task.Status, task.Description,
		task.UpdatedAt, task.ID)

	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task '%s' not found", task.ID)
	}

	return nil
}

func (r *taskRepository) UpdateTaskStatus(id, status string) error {
	result, err := r.db.Exec(`
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ?
	`, status, time.Now().UTC(), id)

	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task '%s' not found", id)
	}

	return nil
}

func (r *taskRepository) DeleteTask(id string) error {
	_, err := r.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func (r *taskRepository) GetTaskCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get task count: %w", err)
	}
	return count, nil
}

// AddExecution records a run outcome and prunes records beyond the
// retention cap, oldest first.
func (r *taskRepository) AddExecution(exec TaskExecution) (int64, error) {
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}
	if exec.Status == "" {
		exec.Status = ExecutionStatusSuccess
	}

	result, err := r.db.Exec(`
		INSERT INTO task_executions (
			task_id, run_id, html_path, matched_count, duration_ms,
			status, error_message, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.TaskID, exec.RunID, exec.HTMLPath, exec.MatchedCount, exec.DurationMs,
		exec.Status, exec.ErrorMessage, exec.ExecutedAt)

	if err != nil {
		return 0, fmt.Errorf("failed to add execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get execution id: %w", err)
	}

	_, err = r.db.Exec(`
		DELETE FROM task_executions
		WHERE task_id = ?
		  AND id NOT IN (
			SELECT id FROM task_executions
			WHERE task_id = ?
			ORDER BY id DESC
			LIMIT ?
		  )
	`, exec.TaskID, exec.TaskID, r.retainPerTask)

	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}

	return id, nil
}

func (r *taskRepository) GetExecutions(taskID string, limit int) ([]TaskExecution, error) {
	if limit <= 0 || limit > r.retainPerTask {
		limit = r.retainPerTask
	}

	rows, err := r.db.Query(`
		SELECT id, task_id, run_id, html_path, matched_count, duration_ms,
		       status, error_message, executed_at
		FROM task_executions
		WHERE task_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get executions: %w", err)
	}
	defer rows.Close()

	var execs []TaskExecution
	for rows.Next() {
		var exec TaskExecution
		err := rows.Scan(
			&exec.ID, &exec.TaskID, &exec.RunID, &exec.HTMLPath,
			&exec.MatchedCount, &exec.DurationMs, &exec.Status,
			&exec.ErrorMessage, &exec.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		execs = append(execs, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}

	return execs, nil
}

func (r *taskRepository) GetLatestExecution(taskID string) (*TaskExecution, error) {
	var exec TaskExecution
	err := r.db.QueryRow(`
		SELECT id, task_id, run_id, html_path, matched_count, duration_ms,
		       status, error_message, executed_at
		FROM task_executions
		WHERE task_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, taskID).Scan(
		&exec.ID, &exec.TaskID, &exec.RunID, &exec.HTMLPath,
		&exec.MatchedCount, &exec.DurationMs, &exec.Status,
		&exec.ErrorMessage, &exec.ExecutedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}

	return &exec, nil
}

func (r *taskRepository) GetExecutionCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM task_executions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get execution count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var keywords, filters, platforms, expansions string

	err := row.Scan(
		&task.ID, &task.Name, &task.UserID,
		&keywords, &filters, &platforms, &expansions,
		&task.ReportMode, &task.ExpandKeywords, &task.Status, &task.Description,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Keywords = decodeStrings(keywords)
	task.Filters = decodeStrings(filters)
	task.Platforms = decodeStrings(platforms)
	task.Expansions = decodeExpansions(expansions)

	return &task, nil
}

func encodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(data string) []string {
	var values []string
	if data == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(data), &values)
	return values
}

func encodeExpansions(values map[string][]string) string {
	if values == nil {
		values = map[string][]string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeExpansions(data string) map[string][]string {
	var values map[string][]string
	if data == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(data), &values)
	return values
}
