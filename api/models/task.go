package models

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	StatusQueued     TaskStatus = "queued"
	StatusAcquiring  TaskStatus = "acquiring"
	StatusProcessing TaskStatus = "processing"
	StatusDelivering TaskStatus = "delivering"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the archival row. The API creates it at submission time with
// status queued; the worker writes the terminal state.
type Task struct {
	ID             string
	TraceID        string
	RequesterID    int64
	ChatID         int64
	Tool           string
	Options        json.RawMessage
	Status         TaskStatus
	ErrorMessage   string
	OutputLocation string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}
