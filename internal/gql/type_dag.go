package gql

import (
	"bytes"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/savaki/data-pipeline/internal/dag"
)

// DagResolver resolves the Dag GraphQL type
type DagResolver struct {
	dag *dag.DAG
}

func (r *DagResolver) ID() graphql.ID {
	return graphql.ID(r.dag.ID)
}

func (r *DagResolver) Description() string {
	return r.dag.Description
}

func (r *DagResolver) Owner() string {
	return r.dag.DefaultArgs.Owner
}

func (r *DagResolver) ScheduleSeconds() int32 {
	return int32(r.dag.Schedule.Seconds())
}

func (r *DagResolver) StartDate() DateTime {
	return newDateTime(r.dag.DefaultArgs.StartDate)
}

// Tasks resolves the tasks in topological order
func (r *DagResolver) Tasks() ([]*TaskResolver, error) {
	tasks, err := r.dag.Tasks()
	if err != nil {
		return nil, err
	}

	resolvers := make([]*TaskResolver, len(tasks))
	for i, task := range tasks {
		resolvers[i] = &TaskResolver{dag: r.dag, task: task}
	}
	return resolvers, nil
}

// Graph resolves the DAG as Graphviz DOT
func (r *DagResolver) Graph() (string, error) {
	var buf bytes.Buffer
	if err := r.dag.DOT(&buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TaskResolver resolves the Task GraphQL type
type TaskResolver struct {
	dag  *dag.DAG
	task dag.Task
}

func (r *TaskResolver) ID() graphql.ID {
	return graphql.ID(r.task.ID)
}

func (r *TaskResolver) Description() string {
	return r.task.Description
}

func (r *TaskResolver) Retries() int32 {
	return int32(r.task.Retries)
}

func (r *TaskResolver) RetryDelaySeconds() int32 {
	return int32(r.task.RetryDelay.Seconds())
}

func (r *TaskResolver) Upstream() ([]string, error) {
	return r.dag.Upstream(r.task.ID)
}

func (r *TaskResolver) Downstream() ([]string, error) {
	return r.dag.Downstream(r.task.ID)
}
