package gql

import (
	"context"
	"errors"

	graphql "github.com/graph-gophers/graphql-go"

	pipelineerrors "github.com/savaki/data-pipeline/internal/errors"
)

const defaultRunsLimit = 25

// Dag resolves the dag query
func (r *Resolver) Dag() *DagResolver {
	return &DagResolver{dag: r.dag}
}

// Runs resolves the runs query - lists recent runs of the pipeline, newest first
func (r *Resolver) Runs(ctx context.Context, args struct{ Limit *int32 }) ([]*RunResolver, error) {
	limit := defaultRunsLimit
	if args.Limit != nil && *args.Limit > 0 {
		limit = int(*args.Limit)
	}

	records, err := r.runs.ListRuns(ctx, r.dag.ID, limit)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*RunResolver, len(records))
	for i, record := range records {
		resolvers[i] = newRunResolver(record, r.dag, r.runs)
	}
	return resolvers, nil
}

// Run resolves the run query. An unknown id resolves to null.
func (r *Resolver) Run(ctx context.Context, args struct{ ID graphql.ID }) (*RunResolver, error) {
	record, err := r.runs.GetRun(ctx, string(args.ID))
	if errors.Is(err, pipelineerrors.ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return newRunResolver(record, r.dag, r.runs), nil
}
