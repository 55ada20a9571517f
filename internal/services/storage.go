package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client used by Storage
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Storage provisions buckets and reads/writes pipeline objects in S3
type Storage struct {
	client S3API
}

func NewStorage(client S3API) *Storage {
	return &Storage{client: client}
}

func withRegion(region string) func(*s3.Options) {
	return func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
	}
}

// EnsureBucket creates the bucket in region unless it already exists and is
// owned by the caller. created is false when the bucket was already there.
func (s *Storage) EnsureBucket(ctx context.Context, name, region string) (created bool, err error) {
	logger := zerolog.Ctx(ctx)

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}, withRegion(region)); err == nil {
		logger.Info().Str("bucket", name).Msg("Bucket already exists")
		return false, nil
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	// us-east-1 rejects an explicit location constraint
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err = s.client.CreateBucket(ctx, input, withRegion(region))
	if err != nil {
		if isBucketOwnedByYou(err) {
			logger.Info().Str("bucket", name).Msg("Bucket already owned by this account")
			return false, nil
		}
		return false, fmt.Errorf("failed to create bucket %s in %s: %w", name, region, err)
	}

	logger.Info().
		Str("bucket", name).
		Str("region", region).
		Msg("Created bucket")

	return true, nil
}

func isBucketOwnedByYou(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
	}
	return false
}

// Upload writes body to s3://bucket/key as JSON and returns the object URI
func (s *Storage) Upload(ctx context.Context, bucket, key, region string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	}, withRegion(region))
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", bucket, key)
	zerolog.Ctx(ctx).Info().
		Str("uri", uri).
		Int("bytes", len(body)).
		Msg("Uploaded object")

	return uri, nil
}

// Download reads s3://bucket/key
func (s *Storage) Download(ctx context.Context, bucket, key, region string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, withRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}
