package taskdao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"

	"github.com/savaki/data-pipeline/internal/models"
)

// TableName derives the task instances table name from the environment
func TableName(env string) string {
	return fmt.Sprintf("%s-data-pipeline--task-instances", env)
}

// PK represents the partition key: {dag_id}/{run_id}
type PK string

// NewPK creates a partition key from dag id and run id
func NewPK(dagID, runID string) PK {
	return PK(fmt.Sprintf("%s/%s", dagID, runID))
}

// ParsePK parses a partition key into dag id and run id components
func ParsePK(pk PK) (dagID, runID string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {dag_id}/{run_id}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// ID represents a task instance ID in format {dag_id}/{run_id}:{task_id}
// Example: complex_data_pipeline/2HFj3kLmNoPqRsTuVwXy:process_data
type ID string

// NewID creates an ID from dag id, run id and task id
func NewID(dagID, runID, taskID string) ID {
	return ID(fmt.Sprintf("%s:%s", NewPK(dagID, runID), taskID))
}

// ParseID parses an ID into dag id, run id and task id components
func ParseID(id ID) (dagID, runID, taskID string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid ID format: %s, expected {dag_id}/{run_id}:{task_id}", s)
	}

	dagID, runID, err = ParsePK(PK(parts[0]))
	if err != nil {
		return "", "", "", err
	}

	return dagID, runID, parts[1], nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Record represents the state of one task within one run
type Record struct {
	PK         PK               `ddb:"hash" dynamodbav:"pk"`         // {dag_id}/{run_id}
	SK         string           `ddb:"range" dynamodbav:"sk"`        // task id
	State      models.TaskState `dynamodbav:"state"`                 // PENDING|RUNNING|SUCCESS|FAILED|UP_FOR_RETRY|UPSTREAM_FAILED
	TryNumber  int              `dynamodbav:"try_number"`            // 1-based attempt number
	MaxTries   int              `dynamodbav:"max_tries"`             // 1 + retries
	ErrorMsg   string           `dynamodbav:"error_msg,omitempty"`   // Last failure message
	OutputSize int              `dynamodbav:"output_size,omitempty"` // Bytes of XCom output
	CreatedAt  int64            `dynamodbav:"created_at"`            // Unix timestamp
	UpdatedAt  int64            `dynamodbav:"updated_at"`            // Unix timestamp
	StartedAt  int64            `dynamodbav:"started_at,omitempty"`  // Unix timestamp of the latest try
	EndedAt    int64            `dynamodbav:"ended_at,omitempty"`    // Unix timestamp
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	return ID(fmt.Sprintf("%s:%s", r.PK, r.SK))
}

// TaskID returns the task id, stored as the sort key
func (r *Record) TaskID() string {
	return r.SK
}

// TaskInstance converts the record into its model
func (r *Record) TaskInstance() models.TaskInstance {
	return models.TaskInstance{
		TaskID:     r.SK,
		State:      r.State,
		TryNumber:  r.TryNumber,
		MaxTries:   r.MaxTries,
		ErrorMsg:   r.ErrorMsg,
		OutputSize: r.OutputSize,
		StartDate:  unixTime(r.StartedAt),
		EndDate:    unixTime(r.EndedAt),
	}
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// CreateInput contains fields for creating a task instance record
type CreateInput struct {
	DagID    string
	RunID    string
	TaskID   string
	MaxTries int
}

// DAO provides data access operations for task instance tracking
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

// Create initializes a task instance record with PENDING state
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:        NewPK(input.DagID, input.RunID),
		SK:        input.TaskID,
		State:     models.TaskStatePending,
		MaxTries:  input.MaxTries,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create task instance record: %w", err)
	}

	return record, nil
}

// Find retrieves a task instance record by ID
// Returns an error if not found or if there's a database error
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	dagID, runID, taskID, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(NewPK(dagID, runID).String()).
		Range(taskID).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("task instance record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to get task instance: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("task instance record not found: %s", id)
	}

	return record, nil
}

// UpdateInput contains fields for updating a task instance record
type UpdateInput struct {
	DagID      string
	RunID      string
	TaskID     string
	State      models.TaskState
	TryNumber  int
	MaxTries   int
	ErrorMsg   string
	OutputSize int
}

// UpdateState records a state transition. A RUNNING transition stamps
// started_at; terminal states stamp ended_at.
func (d *DAO) UpdateState(ctx context.Context, input UpdateInput) error {
	pk := NewPK(input.DagID, input.RunID)
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(input.TaskID).
		Set("#State = ?", string(input.State)).
		Set("#UpdatedAt = ?", now)

	if input.TryNumber > 0 {
		update = update.Set("#TryNumber = ?", input.TryNumber)
	}

	if input.MaxTries > 0 {
		update = update.Set("#MaxTries = ?", input.MaxTries)
	}

	if input.ErrorMsg != "" {
		update = update.Set("#ErrorMsg = ?", input.ErrorMsg)
	}

	if input.OutputSize > 0 {
		update = update.Set("#OutputSize = ?", input.OutputSize)
	}

	if input.State == models.TaskStateRunning {
		update = update.Set("#StartedAt = ?", now)
	}

	if input.State.IsTerminal() {
		update = update.Set("#EndedAt = ?", now)
	}

	err := update.RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update task instance state: %w", err)
	}

	return nil
}

// QueryByRun returns every task instance of a run, ordered by task id
func (d *DAO) QueryByRun(ctx context.Context, dagID, runID string) ([]Record, error) {
	pk := NewPK(dagID, runID)
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query task instances: %w", err)
	}

	return records, nil
}

// QueryByState returns the task instances of a run in the given state
func (d *DAO) QueryByState(ctx context.Context, dagID, runID string, state models.TaskState) ([]Record, error) {
	pk := NewPK(dagID, runID)
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		Filter("#State = ?", string(state)).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query task instances: %w", err)
	}

	return records, nil
}

// Delete removes a task instance record
func (d *DAO) Delete(ctx context.Context, id ID) error {
	dagID, runID, taskID, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(NewPK(dagID, runID).String()).
		Range(taskID).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete task instance: %w", err)
	}

	return nil
}
