// Package pipeline declares the complex_data_pipeline DAG and binds each of
// its tasks to an operator.
package pipeline

import (
	"fmt"

	"github.com/savaki/data-pipeline/internal/constants"
	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/operators"
	"github.com/savaki/data-pipeline/internal/transform"
)

// Storage is the S3 surface the pipeline's operators need
type Storage interface {
	operators.BucketEnsurer
	operators.Uploader
}

// Pipeline is a DAG together with the operators that execute its tasks
type Pipeline struct {
	DAG       *dag.DAG
	Operators map[string]operators.Operator
}

// NewDAG declares complex_data_pipeline:
//
//	create_bucket >> ingest_data_from_api >> process_data >> upload_to_s3
func NewDAG() (*dag.DAG, error) {
	d := dag.New(constants.DagID,
		dag.WithDescription(constants.DagDescription),
		dag.WithSchedule(constants.ScheduleInterval),
		dag.WithDefaultArgs(dag.DefaultArgs{
			Owner:          constants.DagOwner,
			DependsOnPast:  false,
			StartDate:      constants.StartDate,
			EmailOnFailure: false,
			EmailOnRetry:   false,
			Retries:        constants.DefaultRetries,
			RetryDelay:     constants.DefaultRetryDelay,
		}),
	)

	tasks := []struct {
		id          string
		description string
	}{
		{id: constants.TaskCreateBucket, description: "Create the target S3 bucket if it does not exist"},
		{id: constants.TaskIngestData, description: "Fetch the raw payload from the source API"},
		{id: constants.TaskProcessData, description: "Normalise the raw payload into a processed document"},
		{id: constants.TaskUploadToS3, description: "Upload the processed document to S3"},
	}

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if _, err := d.AddTask(task.id, dag.WithTaskDescription(task.description)); err != nil {
			return nil, err
		}
		ids = append(ids, task.id)
	}

	if err := d.Chain(ids...); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

// NewOperators binds each task of complex_data_pipeline to its operator
func NewOperators(storage Storage, fetcher operators.PayloadFetcher) map[string]operators.Operator {
	return map[string]operators.Operator{
		constants.TaskCreateBucket: &operators.CreateBucketOperator{
			Storage: storage,
		},
		constants.TaskIngestData: &operators.IngestOperator{
			Fetcher: fetcher,
		},
		constants.TaskProcessData: &operators.ProcessOperator{
			Upstream:  constants.TaskIngestData,
			Transform: transform.Process,
		},
		constants.TaskUploadToS3: &operators.UploadOperator{
			Storage:  storage,
			Upstream: constants.TaskProcessData,
			Key:      constants.ProcessedDataKey,
		},
	}
}

// New assembles complex_data_pipeline
func New(storage Storage, fetcher operators.PayloadFetcher) (*Pipeline, error) {
	d, err := NewDAG()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		DAG:       d,
		Operators: NewOperators(storage, fetcher),
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

// Operator returns the operator bound to taskID
func (p *Pipeline) Operator(taskID string) (operators.Operator, error) {
	op, ok := p.Operators[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownTask, taskID)
	}
	return op, nil
}

// Check verifies every task has an operator and every operator has a task
func (p *Pipeline) Check() error {
	tasks, err := p.DAG.Tasks()
	if err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for _, task := range tasks {
		if _, err := p.Operator(task.ID); err != nil {
			return err
		}
		seen[task.ID] = struct{}{}
	}
	for id := range p.Operators {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("%w: operator %s has no task in %s", errors.ErrUnknownTask, id, p.DAG.ID)
		}
	}
	return nil
}
