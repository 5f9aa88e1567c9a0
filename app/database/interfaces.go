package database

import (
	"github.com/Wangx-create/TRNNew/app/news"
)

type TaskRepository interface {
	CreateTask(task Task) error
	GetTask(id string) (*Task, error)
	ListTasks(userID, status string) ([]Task, error)
	UpdateTask(task Task) error
	UpdateTaskStatus(id, status string) error
	DeleteTask(id string) error
	GetTaskCount() (int, error)

	AddExecution(exec TaskExecution) (int64, error)
	GetExecutions(taskID string, limit int) ([]TaskExecution, error)
	GetLatestExecution(taskID string) (*TaskExecution, error)
	GetExecutionCount() (int, error)
}

// HistoryRepository is the persisted run-history log consumed by the
// incremental reducer, plus counters for the stats endpoint.
type HistoryRepository interface {
	news.HistoryStore

	GetSignatureCount() (int, error)
	GetIdentityCount() (int, error)
}
