package models

import "time"

// RunStatus is the lifecycle of a DAG run
type RunStatus string

const (
	RunStatusQueued  RunStatus = "QUEUED"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are expected
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// TaskState is the lifecycle of a single task instance within a run
type TaskState string

const (
	TaskStatePending        TaskState = "PENDING"
	TaskStateRunning        TaskState = "RUNNING"
	TaskStateSuccess        TaskState = "SUCCESS"
	TaskStateFailed         TaskState = "FAILED"
	TaskStateUpForRetry     TaskState = "UP_FOR_RETRY"
	TaskStateUpstreamFailed TaskState = "UPSTREAM_FAILED"
)

// IsTerminal reports whether the task instance will not run again in this run
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailed, TaskStateUpstreamFailed:
		return true
	default:
		return false
	}
}

// TaskInstance is the observed state of one task within one run
type TaskInstance struct {
	TaskID     string    `json:"task_id"`
	State      TaskState `json:"state"`
	TryNumber  int       `json:"try_number"`
	MaxTries   int       `json:"max_tries"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	OutputSize int       `json:"output_size,omitempty"`
	StartDate  time.Time `json:"start_date,omitzero"`
	EndDate    time.Time `json:"end_date,omitzero"`
}
