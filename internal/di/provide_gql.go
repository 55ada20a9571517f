package di

import (
	"fmt"

	"github.com/graph-gophers/graphql-go"

	"github.com/savaki/data-pipeline/internal/gql"
)

// Queries nest at most run > taskInstances > field
const (
	maxQueryDepth  = 6
	maxParallelism = 4
)

// ProvideGraphQL is registered only by the binaries that serve the API
func ProvideGraphQL(config gql.Config) (*graphql.Schema, error) {
	schema, err := gql.NewSchema(gql.NewResolver(config),
		graphql.MaxDepth(maxQueryDepth),
		graphql.MaxParallelism(maxParallelism),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL schema: %w", err)
	}
	return schema, nil
}
