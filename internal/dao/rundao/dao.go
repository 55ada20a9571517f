package rundao

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/gox/slicex"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

// latest is the partition holding one pointer record per DAG
const latest = "latest"

// TableName derives the runs table name from the environment
func TableName(env string) string {
	return fmt.Sprintf("%s-data-pipeline--runs", env)
}

// PK represents a DynamoDB partition key, the DAG id
// Example: complex_data_pipeline
type PK string

// NewPK creates a new partition key from the dag id
func NewPK(dagID string) PK {
	return PK(dagID)
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a run ID in format {dag_id}:{run_id}
// Example: complex_data_pipeline:2HFj3kLmNoPqRsTuVwXy
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID parses a run ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid run ID format: %s, expected {dag_id}:{run_id}", s)
	}
	return PK(parts[0]), parts[1], nil
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// Record represents a DAG run record in DynamoDB
type Record struct {
	PK           PK               `ddb:"hash" dynamodbav:"pk"`  // {dag_id} - DynamoDB partition key
	SK           string           `ddb:"range" dynamodbav:"sk"` // run id KSUID - DynamoDB sort key
	ID           ID               `dynamodbav:"id,omitempty"`   // ID is only used for latest entries
	DagID        string           `dynamodbav:"dag_id,omitempty"`
	RunType      models.RunType   `dynamodbav:"run_type,omitempty"`
	LogicalDate  int64            `dynamodbav:"logical_date,omitempty"` // Unix epoch seconds
	BucketName   string           `dynamodbav:"bucket_name,omitempty"`
	Region       string           `dynamodbav:"region,omitempty"`
	APIURL       string           `dynamodbav:"api_url,omitempty"`
	Status       models.RunStatus `dynamodbav:"status,omitempty"`
	ExecutionArn *string          `dynamodbav:"execution_arn,omitempty"` // Step Functions execution ARN
	ErrorMsg     *string          `dynamodbav:"error_msg,omitempty"`
	CreatedAt    int64            `dynamodbav:"created_at,omitempty"`
	FinishedAt   *int64           `dynamodbav:"finished_at,omitempty"`
	UpdatedAt    int64            `dynamodbav:"updated_at,omitempty"`
}

// GetID returns the full run ID in format: {dag_id}:{run_id}
func (r *Record) GetID() ID {
	if r.ID != "" {
		return r.ID
	}
	return NewID(r.PK, r.SK)
}

// Run converts the record into the run identity passed to tasks
func (r *Record) Run() models.Run {
	return models.Run{
		DagID:       r.DagID,
		RunID:       r.SK,
		RunType:     r.RunType,
		LogicalDate: time.Unix(r.LogicalDate, 0).UTC(),
		Conf: models.RunConf{
			BucketName: r.BucketName,
			Region:     r.Region,
			APIURL:     r.APIURL,
		},
	}
}

// CreateInput contains the fields needed to create a new run record
type CreateInput struct {
	Run models.Run
}

// UpdateInput contains the fields that can be updated on a run record
type UpdateInput struct {
	PK       PK                // Partition key (dag id)
	SK       string            // Sort key (run id)
	Status   *models.RunStatus // New status
	ErrorMsg *string           // Error message (optional)
}

// DAO provides data access operations for run records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new run record with initial status QUEUED
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	run := input.Run
	if run.DagID == "" || run.RunID == "" {
		return Record{}, fmt.Errorf("dag id and run id are required")
	}

	now := time.Now().Unix()
	record := Record{
		PK:          NewPK(run.DagID),
		SK:          run.RunID,
		DagID:       run.DagID,
		RunType:     run.RunType,
		LogicalDate: run.LogicalDate.Unix(),
		BucketName:  run.Conf.BucketName,
		Region:      run.Conf.Region,
		APIURL:      run.Conf.APIURL,
		Status:      models.RunStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create run record: %w", err)
	}

	return record, nil
}

// Find retrieves a run record by ID
// Returns errors.ErrRunNotFound if the record does not exist
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("%w: %s", errors.ErrRunNotFound, id)
		}
		return Record{}, fmt.Errorf("failed to find run record: %w", err)
	}

	// If all fields are empty, item doesn't exist
	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("%w: %s", errors.ErrRunNotFound, id)
	}

	return record, nil
}

// Delete removes a run record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk.String()).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}

	return nil
}

func (d *DAO) latestRecord(pk PK, sk string, status models.RunStatus, now int64) *Record {
	return &Record{
		PK:        latest,
		SK:        pk.String(), // SK in latest record = PK from original (dag id)
		ID:        NewID(pk, sk),
		DagID:     pk.String(),
		Status:    status,
		UpdatedAt: now,
	}
}

// UpdateStatus updates the status of a run record and creates/updates a "latest" magic record
// The latest record has pk=latest and sk={dag id} to enable efficient queries for latest runs
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	if input.Status == nil {
		return fmt.Errorf("status is required")
	}

	now := time.Now().Unix()

	update := d.table.Update(input.PK.String()).
		Range(input.SK).
		Set("#Status = ?", string(*input.Status)).
		Set("#UpdatedAt = ?", now)

	if input.Status.IsTerminal() {
		update = update.Set("#FinishedAt = ?", now)
	}

	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	put := d.table.Put(d.latestRecord(input.PK, input.SK, *input.Status, now))

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	return nil
}

// StartExecution atomically updates a run record to RUNNING status and sets the execution ARN
func (d *DAO) StartExecution(ctx context.Context, pk PK, sk string, executionArn string) error {
	now := time.Now().Unix()
	status := models.RunStatusRunning

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(status)).
		Set("#ExecutionArn = ?", executionArn).
		Set("#UpdatedAt = ?", now)

	put := d.table.Put(d.latestRecord(pk, sk, status, now))

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to start execution: %w", err)
	}

	return nil
}

// Query returns runs for a dag, most recent first. limit <= 0 returns all runs.
func (d *DAO) Query(ctx context.Context, pk PK, limit int) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	// KSUID sort keys are time ordered
	slices.Reverse(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// QueryLatestRuns returns the latest run of every DAG using the "latest" magic records
func (d *DAO) QueryLatestRuns(ctx context.Context) ([]Record, error) {
	var pointers []Record

	err := d.table.Query("#PK = ?", latest).
		FindAllWithContext(ctx, &pointers)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}

	slices.SortFunc(pointers, func(a, b Record) int {
		return cmp.Compare(b.UpdatedAt, a.UpdatedAt)
	})

	ids := slicex.Map(pointers, func(r Record) ID { return r.GetID() })

	runs := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := d.Find(ctx, id)
		if err != nil {
			// Skip records that are not found (may have been deleted)
			continue
		}
		runs = append(runs, record)
	}

	return runs, nil
}
