// Package executor runs a DAG in-process. Tasks whose upstream tasks have all
// succeeded run in waves, failed tries are retried after the task's retry
// delay, and tasks downstream of a failure are marked UPSTREAM_FAILED without
// being attempted.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/operators"
)

// DefaultParallelism bounds how many ready tasks run at once
const DefaultParallelism = 4

// Recorder observes run and task state transitions
type Recorder interface {
	RunStarted(ctx context.Context, run models.Run) error
	TaskChanged(ctx context.Context, run models.Run, ti models.TaskInstance) error
	RunFinished(ctx context.Context, run models.Run, status models.RunStatus, errMsg string) error
}

// NopRecorder discards every transition
type NopRecorder struct{}

func (NopRecorder) RunStarted(context.Context, models.Run) error { return nil }

func (NopRecorder) TaskChanged(context.Context, models.Run, models.TaskInstance) error { return nil }

func (NopRecorder) RunFinished(context.Context, models.Run, models.RunStatus, string) error {
	return nil
}

// OutputCheck rejects a task result before it is handed downstream. A
// rejected result fails the task without retry.
type OutputCheck func(run models.Run, taskID string, out models.Payload, results map[string]models.Payload) error

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor runs the tasks of a single DAG
type Executor struct {
	dag         *dag.DAG
	operators   map[string]operators.Operator
	recorder    Recorder
	outputCheck OutputCheck
	sleep       SleepFunc
	parallelism int
}

type Option func(*Executor)

func WithRecorder(recorder Recorder) Option {
	return func(e *Executor) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

func WithOutputCheck(check OutputCheck) Option {
	return func(e *Executor) {
		e.outputCheck = check
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func WithParallelism(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// New returns an executor for d. Every task in d must have an operator.
func New(d *dag.DAG, ops map[string]operators.Operator, opts ...Option) (*Executor, error) {
	tasks, err := d.Tasks()
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if _, ok := ops[task.ID]; !ok {
			return nil, fmt.Errorf("%w: no operator for %s", errors.ErrUnknownTask, task.ID)
		}
	}

	e := &Executor{
		dag:         d,
		operators:   ops,
		recorder:    NopRecorder{},
		sleep:       Sleep,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DAG returns the graph the executor runs
func (e *Executor) DAG() *dag.DAG {
	return e.dag
}

// Result is the outcome of a run
type Result struct {
	Run     models.Run
	Status  models.RunStatus
	Tasks   map[string]models.TaskInstance
	Results map[string]models.Payload
	Err     error
}

// States returns the final state of each task keyed by task id
func (r *Result) States() map[string]string {
	states := make(map[string]string, len(r.Tasks))
	for id, ti := range r.Tasks {
		states[id] = string(ti.State)
	}
	return states
}

// Run executes every task of the DAG for run. The returned error is non-nil
// when the run did not succeed; the Result is always populated.
func (e *Executor) Run(ctx context.Context, run models.Run) (*Result, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("dag_id", run.DagID).
		Str("run_id", run.RunID).
		Logger()
	ctx = logger.WithContext(ctx)

	order, err := e.dag.Order()
	if err != nil {
		return nil, err
	}

	result := &Result{
		Run:     run,
		Tasks:   make(map[string]models.TaskInstance, len(order)),
		Results: make(map[string]models.Payload, len(order)),
	}
	for _, id := range order {
		task, err := e.dag.Task(id)
		if err != nil {
			return nil, err
		}
		result.Tasks[id] = models.TaskInstance{
			TaskID:   id,
			State:    models.TaskStatePending,
			MaxTries: task.MaxTries(),
		}
	}

	logger.Info().Int("tasks", len(order)).Msg("Starting run")
	if err := e.recorder.RunStarted(ctx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to record run start")
	}

	taskErrs := map[string]error{}
	remaining := order
	for len(remaining) > 0 {
		var wave, rest []string
		for _, id := range remaining {
			upstream, err := e.dag.Upstream(id)
			if err != nil {
				return nil, err
			}

			switch upstreamState(result.Tasks, upstream) {
			case models.TaskStateSuccess:
				wave = append(wave, id)
			case models.TaskStateUpstreamFailed:
				ti := result.Tasks[id]
				ti.State = models.TaskStateUpstreamFailed
				result.Tasks[id] = ti
				e.recordTask(ctx, run, ti)
			default:
				rest = append(rest, id)
			}
		}

		if len(wave) == 0 {
			if len(rest) > 0 {
				return nil, fmt.Errorf("no runnable tasks among %v", rest)
			}
			break
		}

		snapshot := make(map[string]models.Payload, len(result.Results))
		for k, v := range result.Results {
			snapshot[k] = v
		}

		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		g.SetLimit(e.parallelism)
		for _, id := range wave {
			task, err := e.dag.Task(id)
			if err != nil {
				return nil, err
			}
			g.Go(func() error {
				ti, out, err := e.runTask(ctx, run, task, snapshot)

				mu.Lock()
				defer mu.Unlock()
				result.Tasks[task.ID] = ti
				if err != nil {
					taskErrs[task.ID] = err
					return nil
				}
				result.Results[task.ID] = out
				return nil
			})
		}
		_ = g.Wait()

		remaining = rest
	}

	result.Status = models.RunStatusSuccess
	for _, id := range order {
		if result.Tasks[id].State != models.TaskStateSuccess {
			result.Status = models.RunStatusFailed
		}
		if err, ok := taskErrs[id]; ok && result.Err == nil {
			result.Err = err
		}
	}
	if result.Status == models.RunStatusFailed && result.Err == nil {
		result.Err = fmt.Errorf("run %s did not complete", run.RunID)
	}

	var errMsg string
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	if err := e.recorder.RunFinished(context.WithoutCancel(ctx), run, result.Status, errMsg); err != nil {
		logger.Error().Err(err).Msg("Failed to record run finish")
	}

	logger.Info().
		Str("status", string(result.Status)).
		Msg("Run finished")

	return result, result.Err
}

// upstreamState summarises the upstream tasks: SUCCESS when all succeeded,
// UPSTREAM_FAILED when any failed, PENDING otherwise
func upstreamState(tasks map[string]models.TaskInstance, upstream []string) models.TaskState {
	state := models.TaskStateSuccess
	for _, id := range upstream {
		switch tasks[id].State {
		case models.TaskStateSuccess:
		case models.TaskStateFailed, models.TaskStateUpstreamFailed:
			return models.TaskStateUpstreamFailed
		default:
			state = models.TaskStatePending
		}
	}
	return state
}

func (e *Executor) runTask(ctx context.Context, run models.Run, task dag.Task, results map[string]models.Payload) (models.TaskInstance, models.Payload, error) {
	logger := zerolog.Ctx(ctx).With().Str("task_id", task.ID).Logger()
	ctx = logger.WithContext(ctx)

	op := e.operators[task.ID]
	ti := models.TaskInstance{
		TaskID:   task.ID,
		MaxTries: task.MaxTries(),
	}

	var lastErr error
	for try := 1; try <= ti.MaxTries; try++ {
		ti.TryNumber = try
		ti.State = models.TaskStateRunning
		ti.ErrorMsg = ""
		e.recordTask(ctx, run, ti)

		out, err := op.Execute(ctx, operators.NewTaskContext(run, task.ID, try, results))
		if err == nil {
			if err := e.checkOutput(run, task.ID, out, results); err != nil {
				lastErr = err
				ti.ErrorMsg = err.Error()
				break
			}
			ti.State = models.TaskStateSuccess
			ti.OutputSize = len(out)
			e.recordTask(ctx, run, ti)
			logger.Info().Int("try_number", try).Int("output_size", len(out)).Msg("Task succeeded")
			return ti, out, nil
		}

		lastErr = err
		ti.ErrorMsg = err.Error()
		if try == ti.MaxTries || ctx.Err() != nil {
			break
		}

		ti.State = models.TaskStateUpForRetry
		e.recordTask(ctx, run, ti)
		logger.Warn().
			Err(err).
			Int("try_number", try).
			Int("max_tries", ti.MaxTries).
			Dur("retry_delay", task.RetryDelay).
			Msg("Task failed, will retry")

		if err := e.sleep(ctx, task.RetryDelay); err != nil {
			lastErr = fmt.Errorf("retry interrupted: %w", err)
			ti.ErrorMsg = lastErr.Error()
			break
		}
	}

	ti.State = models.TaskStateFailed
	e.recordTask(ctx, run, ti)
	logger.Error().Err(lastErr).Int("try_number", ti.TryNumber).Msg("Task failed")

	return ti, nil, fmt.Errorf("task %s failed after %d tries: %w", task.ID, ti.TryNumber, lastErr)
}

// RunTask executes a single try of taskID. Retries are owned by the caller;
// the recorded state is UP_FOR_RETRY when tries remain and FAILED otherwise.
func (e *Executor) RunTask(ctx context.Context, run models.Run, taskID string, tryNumber int, results map[string]models.Payload) (models.Payload, error) {
	task, err := e.dag.Task(taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownTask, taskID)
	}
	if tryNumber < 1 {
		tryNumber = 1
	}

	logger := zerolog.Ctx(ctx).With().
		Str("dag_id", run.DagID).
		Str("run_id", run.RunID).
		Str("task_id", taskID).
		Int("try_number", tryNumber).
		Logger()
	ctx = logger.WithContext(ctx)

	ti := models.TaskInstance{
		TaskID:    taskID,
		State:     models.TaskStateRunning,
		TryNumber: tryNumber,
		MaxTries:  task.MaxTries(),
	}
	e.recordTask(ctx, run, ti)

	out, err := e.operators[taskID].Execute(ctx, operators.NewTaskContext(run, taskID, tryNumber, results))
	if err != nil {
		ti.State = models.TaskStateUpForRetry
		if tryNumber >= ti.MaxTries {
			ti.State = models.TaskStateFailed
		}
		ti.ErrorMsg = err.Error()
		e.recordTask(ctx, run, ti)
		logger.Error().Err(err).Str("state", string(ti.State)).Msg("Task try failed")
		return nil, err
	}

	if err := e.checkOutput(run, taskID, out, results); err != nil {
		ti.State = models.TaskStateFailed
		ti.ErrorMsg = err.Error()
		e.recordTask(ctx, run, ti)
		logger.Error().Err(err).Int("output_size", len(out)).Msg("Task output rejected")
		return nil, err
	}

	ti.State = models.TaskStateSuccess
	ti.OutputSize = len(out)
	e.recordTask(ctx, run, ti)
	logger.Info().Int("output_size", len(out)).Msg("Task succeeded")

	return out, nil
}

func (e *Executor) checkOutput(run models.Run, taskID string, out models.Payload, results map[string]models.Payload) error {
	if e.outputCheck == nil {
		return nil
	}
	return e.outputCheck(run, taskID, out, results)
}

// recordTask persists ti even when ctx was cancelled, so an interrupted run
// still ends in a terminal state
func (e *Executor) recordTask(ctx context.Context, run models.Run, ti models.TaskInstance) {
	if err := e.recorder.TaskChanged(context.WithoutCancel(ctx), run, ti); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("task_id", ti.TaskID).
			Str("state", string(ti.State)).
			Msg("Failed to record task state")
	}
}
