package operators

import (
	"context"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

// PayloadFetcher retrieves a payload from a URL
type PayloadFetcher interface {
	Fetch(ctx context.Context, url string) (models.Payload, error)
}

// IngestOperator fetches the run's api_url and pushes the raw body
type IngestOperator struct {
	Fetcher PayloadFetcher
}

func (o *IngestOperator) Execute(ctx context.Context, tc *TaskContext) (models.Payload, error) {
	if tc.Run.Conf.APIURL == "" {
		return nil, errors.ErrAPIURLRequired
	}
	return o.Fetcher.Fetch(ctx, tc.Run.Conf.APIURL)
}
