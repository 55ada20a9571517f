package gql

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/services"
)

// RunConfInput is the GraphQL RunConfInput type
type RunConfInput struct {
	BucketName *string
	Region     *string
	ApiUrl     *string
}

func (in *RunConfInput) toModel() models.RunConf {
	var conf models.RunConf
	if in == nil {
		return conf
	}
	if in.BucketName != nil {
		conf.BucketName = *in.BucketName
	}
	if in.Region != nil {
		conf.Region = *in.Region
	}
	if in.ApiUrl != nil {
		conf.APIURL = *in.ApiUrl
	}
	return conf
}

// TriggerRun resolves the triggerRun mutation - starts a manual run with the
// given conf merged over the configured defaults
func (r *Resolver) TriggerRun(ctx context.Context, args struct{ Conf *RunConfInput }) (*RunResolver, error) {
	logger := zerolog.Ctx(ctx)

	run, err := r.trigger.Trigger(ctx, services.TriggerInput{
		RunType: models.RunTypeManual,
		Conf:    args.Conf.toModel(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to trigger run: %w", err)
	}

	logger.Info().
		Str("dag_id", run.DagID).
		Str("run_id", run.RunID).
		Msg("Triggered run")

	id := rundao.NewID(rundao.NewPK(run.DagID), run.RunID)
	record, err := r.runs.GetRun(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read triggered run: %w", err)
	}
	return newRunResolver(record, r.dag, r.runs), nil
}
