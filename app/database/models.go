package database

import (
	"time"
)

const (
	TaskStatusActive   = "active"
	TaskStatusPaused   = "paused"
	TaskStatusArchived = "archived"

	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// Task is a stored task definition. Keywords, Filters, Platforms and
// Expansions are persisted as JSON columns.
type Task struct {
	ID             string
	Name           string
	UserID         string
	Keywords       []string
	Filters        []string
	Platforms      []string
	Expansions     map[string][]string // keyword label -> synonym terms
	ReportMode     string
	ExpandKeywords bool
	Status         string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskExecution is one recorded run outcome for a task. Only the most
// recent N records per task are retained.
type TaskExecution struct {
	ID           int64
	TaskID       string
	RunID        string
	HTMLPath     string
	MatchedCount int
	DurationMs   int64
	Status       string
	ErrorMessage string
	ExecutedAt   time.Time
}
