package task

import (
	"time"
)

// Status is the lifecycle state of a task. Transitions are
// pending -> processing -> completed|failed; terminal states never change.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request holds the generation parameters. A task's request never changes
// after creation; defaults and seed assignment happen at the API boundary
// before the task exists.
type Request struct {
	Prompt            string `json:"prompt"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	NumInferenceSteps int    `json:"num_inference_steps"`
	Seed              int64  `json:"seed"`
}

// Task is one generation request with its lifecycle record. Mutation goes
// through Store transitions only; callers always receive copies.
type Task struct {
	ID           string
	Status       Status
	Request      Request
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ResultRef    string
	ErrorMessage string
}

// View is the externally visible snapshot of a task, as returned by the
// status endpoints. QueuePosition is meaningful only while pending.
type View struct {
	TaskID            string     `json:"task_id"`
	Status            Status     `json:"status"`
	Prompt            string     `json:"prompt"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	NumInferenceSteps int        `json:"num_inference_steps"`
	Seed              int64      `json:"seed"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	QueuePosition     int        `json:"queue_position"`
	ResultRef         string     `json:"result_ref,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// SystemStatus aggregates queue and store counters for GET /api/status.
type SystemStatus struct {
	QueueSize       int `json:"queue_size"`
	MaxQueueSize    int `json:"max_queue_size"`
	PendingCount    int `json:"pending_count"`
	ProcessingCount int `json:"processing_count"`
	CompletedCount  int `json:"completed_count"`
	FailedCount     int `json:"failed_count"`
	TotalCount      int `json:"total_count"`
}
