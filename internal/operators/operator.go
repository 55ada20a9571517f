// Package operators wraps each external call of the pipeline as a task
// operator. Operators are stateless; everything a try needs arrives in the
// TaskContext, including upstream results.
package operators

import (
	"context"
	"fmt"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

// Operator executes one try of a task and returns its XCom value
type Operator interface {
	Execute(ctx context.Context, tc *TaskContext) (models.Payload, error)
}

// OperatorFunc adapts a function to the Operator interface
type OperatorFunc func(ctx context.Context, tc *TaskContext) (models.Payload, error)

func (fn OperatorFunc) Execute(ctx context.Context, tc *TaskContext) (models.Payload, error) {
	return fn(ctx, tc)
}

// TaskContext is the per-try view of a run handed to an operator
type TaskContext struct {
	Run       models.Run
	TaskID    string
	TryNumber int

	results map[string]models.Payload
}

// NewTaskContext builds a context over the results of completed upstream tasks
func NewTaskContext(run models.Run, taskID string, tryNumber int, results map[string]models.Payload) *TaskContext {
	return &TaskContext{
		Run:       run,
		TaskID:    taskID,
		TryNumber: tryNumber,
		results:   results,
	}
}

// XComPull returns the value pushed by taskID
func (tc *TaskContext) XComPull(taskID string) (models.Payload, error) {
	payload, ok := tc.results[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no result from %s", errors.ErrMissingUpstreamResult, tc.TaskID, taskID)
	}
	return payload, nil
}
