package operators

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

// BucketEnsurer provisions buckets
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context, name, region string) (bool, error)
}

// Uploader writes objects
type Uploader interface {
	Upload(ctx context.Context, bucket, key, region string, body []byte) (string, error)
}

// CreateBucketOperator ensures the run's bucket exists in the run's region
type CreateBucketOperator struct {
	Storage BucketEnsurer
}

func (o *CreateBucketOperator) Execute(ctx context.Context, tc *TaskContext) (models.Payload, error) {
	conf := tc.Run.Conf
	if conf.BucketName == "" {
		return nil, errors.ErrBucketNameRequired
	}

	created, err := o.Storage.EnsureBucket(ctx, conf.BucketName, conf.Region)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("bucket", conf.BucketName).
		Str("region", conf.Region).
		Bool("created", created).
		Msg("Bucket ready")

	return nil, nil
}

// UploadOperator writes the result of Upstream to Key in the run's bucket and
// returns the object URI
type UploadOperator struct {
	Storage  Uploader
	Upstream string
	Key      string
}

func (o *UploadOperator) Execute(ctx context.Context, tc *TaskContext) (models.Payload, error) {
	conf := tc.Run.Conf
	if conf.BucketName == "" {
		return nil, errors.ErrBucketNameRequired
	}

	body, err := tc.XComPull(o.Upstream)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s returned no data", errors.ErrMissingUpstreamResult, o.Upstream)
	}

	uri, err := o.Storage.Upload(ctx, conf.BucketName, o.Key, conf.Region, body)
	if err != nil {
		return nil, err
	}

	return models.Payload(uri), nil
}
