package constants

import "time"

// DAG identity and fixed policy of the complex_data_pipeline workflow
const (
	DagID          = "complex_data_pipeline"
	DagDescription = "A complex data pipeline with real-time and batch processing"
	DagOwner       = "airflow"

	// DefaultRegion is where buckets are created when a run does not name one
	DefaultRegion = "us-west-2"

	// ProcessedDataKey is the object key the processed payload is uploaded under
	ProcessedDataKey = "processed_data.json"

	DefaultRetries    = 3
	DefaultRetryDelay = 5 * time.Minute
	ScheduleInterval  = 30 * time.Minute
)

// Task ids, in execution order
const (
	TaskCreateBucket = "create_bucket"
	TaskIngestData   = "ingest_data_from_api"
	TaskProcessData  = "process_data"
	TaskUploadToS3   = "upload_to_s3"
)

// Step Functions limits
const (
	// StateMachineMaxBytes is the largest execution state document Step
	// Functions accepts; larger states fail with States.DataLimitExceeded,
	// which no Catch can handle
	StateMachineMaxBytes = 256 << 10

	// StepFunctionsMaxFetchBytes bounds the ingested payload so that it and
	// its processed form, both base64 encoded, fit in the state document
	StepFunctionsMaxFetchBytes = 64 << 10
)

// StartDate is the first logical date the scheduler aligns runs to
var StartDate = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
