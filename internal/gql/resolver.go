package gql

import (
	"context"
	_ "embed"

	"github.com/graph-gophers/graphql-go"
	"go.uber.org/dig"

	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/services"
)

//go:embed schema.graphqls
var schemaString string

// RunReader reads run history
type RunReader interface {
	GetRun(ctx context.Context, id string) (rundao.Record, error)
	ListRuns(ctx context.Context, dagID string, limit int) ([]rundao.Record, error)
	TaskInstances(ctx context.Context, dagID, runID string) (map[string]models.TaskInstance, error)
}

// RunTrigger starts manual runs
type RunTrigger interface {
	Trigger(ctx context.Context, input services.TriggerInput) (models.Run, error)
}

type Config struct {
	dig.In

	Pipeline *pipeline.Pipeline
	Runs     *services.RunService
	Trigger  *services.Trigger
}

// Resolver is the root GraphQL resolver
type Resolver struct {
	dag     *dag.DAG
	runs    RunReader
	trigger RunTrigger
}

// NewResolver creates a new root resolver with the required dependencies
func NewResolver(config Config) *Resolver {
	return newResolver(config.Pipeline.DAG, config.Runs, config.Trigger)
}

func newResolver(d *dag.DAG, runs RunReader, trigger RunTrigger) *Resolver {
	return &Resolver{
		dag:     d,
		runs:    runs,
		trigger: trigger,
	}
}

// NewSchema creates a new GraphQL schema with the root resolver
func NewSchema(resolver *Resolver, opts ...graphql.SchemaOpt) (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaString, resolver, opts...)
}

// Ok returns "ok" for health checks
func (r *Resolver) Ok() string {
	return "ok"
}
