package gql

import "github.com/savaki/data-pipeline/internal/models"

// RunStatus represents the GraphQL RunStatus enum
type RunStatus string

// FromModelRunStatus converts a models.RunStatus to gql.RunStatus
func FromModelRunStatus(status models.RunStatus) RunStatus {
	if status == "" {
		return RunStatus(models.RunStatusQueued)
	}
	return RunStatus(status)
}

// TaskState represents the GraphQL TaskState enum
type TaskState string

// FromModelTaskState converts a models.TaskState to gql.TaskState
func FromModelTaskState(state models.TaskState) TaskState {
	if state == "" {
		return TaskState(models.TaskStatePending)
	}
	return TaskState(state)
}
