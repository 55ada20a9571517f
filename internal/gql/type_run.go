package gql

import (
	"bytes"
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/models"
)

// RunResolver resolves the Run GraphQL type
type RunResolver struct {
	run  rundao.Record
	dag  *dag.DAG
	runs RunReader
}

func newRunResolver(run rundao.Record, d *dag.DAG, runs RunReader) *RunResolver {
	return &RunResolver{
		run:  run,
		dag:  d,
		runs: runs,
	}
}

// ID resolves the id field ({dag_id}:{run_id})
func (r *RunResolver) ID() graphql.ID {
	return graphql.ID(r.run.GetID())
}

func (r *RunResolver) DagId() string {
	return r.run.DagID
}

func (r *RunResolver) RunId() string {
	return r.run.SK
}

func (r *RunResolver) RunType() string {
	return string(r.run.RunType)
}

func (r *RunResolver) LogicalDate() DateTime {
	return newDateTimeFromUnix(r.run.LogicalDate)
}

func (r *RunResolver) Status() RunStatus {
	return FromModelRunStatus(r.run.Status)
}

func (r *RunResolver) Conf() *RunConfResolver {
	return &RunConfResolver{conf: r.run.Run().Conf}
}

func (r *RunResolver) ExecutionArn() *string {
	return r.run.ExecutionArn
}

func (r *RunResolver) ErrorMsg() *string {
	return r.run.ErrorMsg
}

func (r *RunResolver) StartTime() DateTime {
	return newDateTimeFromUnix(r.run.CreatedAt)
}

func (r *RunResolver) EndTime() *DateTime {
	return newDateTimeFromUnixPtr(r.run.FinishedAt)
}

// TaskInstances resolves one instance per DAG task in topological order.
// Tasks without a record are PENDING.
func (r *RunResolver) TaskInstances(ctx context.Context) ([]*TaskInstanceResolver, error) {
	instances, err := r.instances(ctx)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*TaskInstanceResolver, len(instances))
	for i, ti := range instances {
		resolvers[i] = &TaskInstanceResolver{ti: ti}
	}
	return resolvers, nil
}

// Graph resolves the DAG as DOT with every task coloured by its state in this run
func (r *RunResolver) Graph(ctx context.Context) (string, error) {
	instances, err := r.instances(ctx)
	if err != nil {
		return "", err
	}

	states := make(map[string]string, len(instances))
	for _, ti := range instances {
		states[ti.TaskID] = string(ti.State)
	}

	var buf bytes.Buffer
	if err := r.dag.DOT(&buf, states); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *RunResolver) instances(ctx context.Context) ([]models.TaskInstance, error) {
	observed, err := r.runs.TaskInstances(ctx, r.run.DagID, r.run.SK)
	if err != nil {
		return nil, err
	}

	tasks, err := r.dag.Tasks()
	if err != nil {
		return nil, err
	}

	instances := make([]models.TaskInstance, 0, len(tasks))
	for _, task := range tasks {
		ti, ok := observed[task.ID]
		if !ok {
			ti = models.TaskInstance{
				TaskID:   task.ID,
				State:    models.TaskStatePending,
				MaxTries: task.MaxTries(),
			}
		}
		instances = append(instances, ti)
	}
	return instances, nil
}

// RunConfResolver resolves the RunConf GraphQL type
type RunConfResolver struct {
	conf models.RunConf
}

func (r *RunConfResolver) BucketName() string {
	return r.conf.BucketName
}

func (r *RunConfResolver) Region() string {
	return r.conf.Region
}

func (r *RunConfResolver) ApiUrl() string {
	return r.conf.APIURL
}

// TaskInstanceResolver resolves the TaskInstance GraphQL type
type TaskInstanceResolver struct {
	ti models.TaskInstance
}

func (r *TaskInstanceResolver) TaskId() string {
	return r.ti.TaskID
}

func (r *TaskInstanceResolver) State() TaskState {
	return FromModelTaskState(r.ti.State)
}

func (r *TaskInstanceResolver) TryNumber() int32 {
	return int32(r.ti.TryNumber)
}

func (r *TaskInstanceResolver) MaxTries() int32 {
	return int32(r.ti.MaxTries)
}

func (r *TaskInstanceResolver) ErrorMsg() *string {
	if r.ti.ErrorMsg == "" {
		return nil
	}
	return &r.ti.ErrorMsg
}

func (r *TaskInstanceResolver) OutputSize() int32 {
	return int32(r.ti.OutputSize)
}

func (r *TaskInstanceResolver) StartDate() *DateTime {
	return newOptionalDateTime(r.ti.StartDate)
}

func (r *TaskInstanceResolver) EndDate() *DateTime {
	return newOptionalDateTime(r.ti.EndDate)
}
