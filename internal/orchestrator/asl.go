package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/savaki/data-pipeline/internal/constants"
	"github.com/savaki/data-pipeline/internal/dag"
	pipelineerrors "github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

const (
	lambdaInvokeResource = "arn:aws:states:::lambda:invoke"

	// reserved state names; task ids must not use them
	stateMarkSuccess = "mark_success"
	stateMarkFailed  = "mark_failed"
	stateFailed      = "failed"

	// ErrorPayloadTooLarge is the error name of a *errors.PayloadTooLargeError
	// returned by the run-task Lambda. It is never retried.
	ErrorPayloadTooLarge = "PayloadTooLargeError"

	// room for $.error and $.status_update next to run and results
	stateOverheadBytes = 4 << 10
)

// Functions names the Lambda functions the state machine invokes
type Functions struct {
	RunTask         string
	UpdateRunStatus string
}

// StateMachine is an Amazon States Language document
type StateMachine struct {
	Comment string           `json:"Comment,omitempty"`
	StartAt string           `json:"StartAt"`
	States  map[string]State `json:"States"`
}

// State is the subset of ASL state fields the compiler emits
type State struct {
	Type           string         `json:"Type"`
	Comment        string         `json:"Comment,omitempty"`
	Resource       string         `json:"Resource,omitempty"`
	Parameters     map[string]any `json:"Parameters,omitempty"`
	ResultSelector map[string]any `json:"ResultSelector,omitempty"`
	ResultPath     string         `json:"ResultPath,omitempty"`
	Retry          []Retrier      `json:"Retry,omitempty"`
	Catch          []Catcher      `json:"Catch,omitempty"`
	Next           string         `json:"Next,omitempty"`
	End            bool           `json:"End,omitempty"`
	Error          string         `json:"Error,omitempty"`
	CausePath      string         `json:"CausePath,omitempty"`
}

type Retrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds int      `json:"IntervalSeconds"`
	MaxAttempts     int      `json:"MaxAttempts"`
	BackoffRate     float64  `json:"BackoffRate"`
}

type Catcher struct {
	ErrorEquals []string `json:"ErrorEquals"`
	ResultPath  string   `json:"ResultPath"`
	Next        string   `json:"Next"`
}

// Compile turns a linear DAG into a state machine. Each task becomes a Lambda
// invoke of fns.RunTask with the task's retry policy; the result of each task
// lands in $.results.<task_id> for downstream tasks to read.
func Compile(d *dag.DAG, fns Functions) (StateMachine, error) {
	tasks, err := d.Tasks()
	if err != nil {
		return StateMachine{}, err
	}
	if len(tasks) == 0 {
		return StateMachine{}, fmt.Errorf("dag %s has no tasks", d.ID)
	}

	for _, task := range tasks {
		switch task.ID {
		case stateMarkSuccess, stateMarkFailed, stateFailed:
			return StateMachine{}, fmt.Errorf("task id %s is reserved", task.ID)
		}

		downstream, err := d.Downstream(task.ID)
		if err != nil {
			return StateMachine{}, err
		}
		upstream, err := d.Upstream(task.ID)
		if err != nil {
			return StateMachine{}, err
		}
		if len(downstream) > 1 || len(upstream) > 1 {
			return StateMachine{}, fmt.Errorf("dag %s is not a linear chain at task %s", d.ID, task.ID)
		}
	}

	sm := StateMachine{
		Comment: d.Description,
		StartAt: tasks[0].ID,
		States:  make(map[string]State, len(tasks)+3),
	}

	for i, task := range tasks {
		next := stateMarkSuccess
		if i+1 < len(tasks) {
			next = tasks[i+1].ID
		}
		sm.States[task.ID] = taskState(task, fns.RunTask, next)
	}

	sm.States[stateMarkSuccess] = State{
		Type:     "Task",
		Resource: lambdaInvokeResource,
		Parameters: map[string]any{
			"FunctionName": fns.UpdateRunStatus,
			"Payload": map[string]any{
				"run.$":  "$.run",
				"status": string(models.RunStatusSuccess),
			},
		},
		ResultPath: "$.status_update",
		End:        true,
	}
	sm.States[stateMarkFailed] = State{
		Type:     "Task",
		Resource: lambdaInvokeResource,
		Parameters: map[string]any{
			"FunctionName": fns.UpdateRunStatus,
			"Payload": map[string]any{
				"run.$":   "$.run",
				"status":  string(models.RunStatusFailed),
				"error.$": "$.error.Cause",
			},
		},
		ResultPath: "$.status_update",
		Next:       stateFailed,
	}
	sm.States[stateFailed] = State{
		Type:      "Fail",
		Error:     "PipelineFailed",
		CausePath: "$.error.Cause",
	}

	return sm, nil
}

func taskState(task dag.Task, runTask, next string) State {
	resultPath := "$.results." + task.ID

	state := State{
		Type:     "Task",
		Comment:  task.Description,
		Resource: lambdaInvokeResource,
		Parameters: map[string]any{
			"FunctionName": runTask,
			"Payload": map[string]any{
				"task_id":       task.ID,
				"run.$":         "$.run",
				"results.$":     "$.results",
				"retry_count.$": "$$.State.RetryCount",
			},
		},
		ResultSelector: map[string]any{
			"payload.$": "$.Payload.payload",
		},
		ResultPath: resultPath,
		Catch: []Catcher{
			{
				ErrorEquals: []string{"States.ALL"},
				ResultPath:  "$.error",
				Next:        stateMarkFailed,
			},
		},
		Next: next,
	}

	if task.Retries > 0 {
		state.Retry = []Retrier{
			{
				ErrorEquals:     []string{ErrorPayloadTooLarge},
				IntervalSeconds: 1,
				MaxAttempts:     0,
				BackoffRate:     1.0,
			},
			{
				ErrorEquals:     []string{"States.ALL"},
				IntervalSeconds: int(task.RetryDelay.Seconds()),
				MaxAttempts:     task.Retries,
				BackoffRate:     1.0,
			},
		}
	}

	return state
}

// CheckStateSize fails with a *errors.PayloadTooLargeError when storing out as
// the result of taskID would push the execution state past the Step Functions
// limit. results holds the results already in the state.
func CheckStateSize(run models.Run, taskID string, out models.Payload, results map[string]models.Payload) error {
	state := models.StepFunctionInput{
		Run:     run,
		Results: make(map[string]models.TaskResult, len(results)+1),
	}
	for id, payload := range results {
		state.Results[id] = models.TaskResult{Payload: payload}
	}
	state.Results[taskID] = models.TaskResult{Payload: out}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to measure execution state: %w", err)
	}

	limit := constants.StateMachineMaxBytes - stateOverheadBytes
	if len(data) > limit {
		return &pipelineerrors.PayloadTooLargeError{TaskID: taskID, Size: len(data), Limit: limit}
	}
	return nil
}

// Definition returns the compiled state machine as JSON
func Definition(d *dag.DAG, fns Functions) (string, error) {
	sm, err := Compile(d, fns)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(sm, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state machine: %w", err)
	}
	return string(data), nil
}
