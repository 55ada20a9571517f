package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/dao/taskdao"
	"github.com/savaki/data-pipeline/internal/models"
)

// RunService persists runs and task instances
type RunService struct {
	runs  *rundao.DAO
	tasks *taskdao.DAO
}

func NewRunService(runs *rundao.DAO, tasks *taskdao.DAO) *RunService {
	return &RunService{
		runs:  runs,
		tasks: tasks,
	}
}

// CreateRun stores a QUEUED run
func (s *RunService) CreateRun(ctx context.Context, run models.Run) error {
	_, err := s.runs.Create(ctx, rundao.CreateInput{Run: run})
	return err
}

// RunStarted marks the run RUNNING
func (s *RunService) RunStarted(ctx context.Context, run models.Run) error {
	status := models.RunStatusRunning
	return s.runs.UpdateStatus(ctx, rundao.UpdateInput{
		PK:     rundao.NewPK(run.DagID),
		SK:     run.RunID,
		Status: &status,
	})
}

// ExecutionStarted marks the run RUNNING under a Step Functions execution
func (s *RunService) ExecutionStarted(ctx context.Context, run models.Run, executionArn string) error {
	return s.runs.StartExecution(ctx, rundao.NewPK(run.DagID), run.RunID, executionArn)
}

// TaskChanged records a task instance transition
func (s *RunService) TaskChanged(ctx context.Context, run models.Run, ti models.TaskInstance) error {
	return s.tasks.UpdateState(ctx, taskdao.UpdateInput{
		DagID:      run.DagID,
		RunID:      run.RunID,
		TaskID:     ti.TaskID,
		State:      ti.State,
		TryNumber:  ti.TryNumber,
		MaxTries:   ti.MaxTries,
		ErrorMsg:   ti.ErrorMsg,
		OutputSize: ti.OutputSize,
	})
}

// RunFinished records the terminal status of a run
func (s *RunService) RunFinished(ctx context.Context, run models.Run, status models.RunStatus, errMsg string) error {
	input := rundao.UpdateInput{
		PK:     rundao.NewPK(run.DagID),
		SK:     run.RunID,
		Status: &status,
	}
	if errMsg != "" {
		input.ErrorMsg = &errMsg
	}

	if err := s.runs.UpdateStatus(ctx, input); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("dag_id", run.DagID).
		Str("run_id", run.RunID).
		Str("status", string(status)).
		Msg("Recorded run status")

	return nil
}

// GetRun returns the run identified by id, formatted {dag_id}:{run_id}
func (s *RunService) GetRun(ctx context.Context, id string) (rundao.Record, error) {
	return s.runs.Find(ctx, rundao.ID(id))
}

// ListRuns returns up to limit runs of dagID, newest first
func (s *RunService) ListRuns(ctx context.Context, dagID string, limit int) ([]rundao.Record, error) {
	return s.runs.Query(ctx, rundao.NewPK(dagID), limit)
}

// LatestRuns returns the most recent run of every DAG
func (s *RunService) LatestRuns(ctx context.Context) ([]rundao.Record, error) {
	return s.runs.QueryLatestRuns(ctx)
}

// TaskInstances returns the task instances of a run keyed by task id
func (s *RunService) TaskInstances(ctx context.Context, dagID, runID string) (map[string]models.TaskInstance, error) {
	records, err := s.tasks.QueryByRun(ctx, dagID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task instances: %w", err)
	}

	instances := make(map[string]models.TaskInstance, len(records))
	for _, record := range records {
		instances[record.TaskID()] = record.TaskInstance()
	}
	return instances, nil
}
