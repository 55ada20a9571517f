package errors

import (
	"errors"
	"fmt"
)

var (
	ErrStateMachineARNRequired = errors.New("STATE_MACHINE_ARN environment variable is required")
	ErrBucketNameRequired      = errors.New("bucket_name is required")
	ErrAPIURLRequired          = errors.New("api_url is required")
	ErrMissingUpstreamResult   = errors.New("upstream task produced no result")
	ErrUnexpectedStatus        = errors.New("unexpected HTTP status")
	ErrPayloadTooLarge         = errors.New("payload exceeds maximum size")
	ErrRunConfRejected         = errors.New("run conf rejected by policy")
	ErrUnknownTask             = errors.New("unknown task")
	ErrRunNotFound             = errors.New("run not found")
	ErrAlreadyScheduled        = errors.New("interval already has a scheduled run")
)

// PayloadTooLargeError reports a task result that does not fit in the
// execution state. Step Functions matches on the type name.
type PayloadTooLargeError struct {
	TaskID string
	Size   int
	Limit  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("%s: result of %s makes the execution state %d bytes, limit %d", ErrPayloadTooLarge, e.TaskID, e.Size, e.Limit)
}

func (e *PayloadTooLargeError) Unwrap() error {
	return ErrPayloadTooLarge
}
