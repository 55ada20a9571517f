// Package lockdao stores one lock per scheduled interval so a logical date
// is dispatched at most once, however many times its schedule fires
package lockdao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/savaki/ddb/v2"
)

// locks outlive any retry of the interval they guard
const lockTTL = 7 * 24 * time.Hour

// TableName derives the locks table name from the environment
func TableName(env string) string {
	return fmt.Sprintf("%s-data-pipeline--locks", env)
}

// PK represents the partition key, the DAG id
type PK string

func NewPK(dagID string) PK {
	return PK(dagID)
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// NewSK formats a logical date as the sort key
func NewSK(logicalDate time.Time) string {
	return logicalDate.UTC().Format(time.RFC3339)
}

// ID represents a lock ID in format {dag_id}:{logical_date}
// Example: complex_data_pipeline:2024-01-01T00:30:00Z
type ID string

// NewID creates an ID from a DAG id and logical date
func NewID(dagID string, logicalDate time.Time) ID {
	return ID(fmt.Sprintf("%s:%s", NewPK(dagID), NewSK(logicalDate)))
}

// ParseID parses an ID into partition and sort keys
func ParseID(id ID) (PK, string, error) {
	pk, sk, ok := strings.Cut(string(id), ":")
	if !ok || pk == "" || sk == "" {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {dag_id}:{logical_date}", id)
	}
	return PK(pk), sk, nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Record represents the lock on one scheduled interval
type Record struct {
	PK         PK     `ddb:"hash" dynamodbav:"pk"`  // {dag_id}
	SK         string `ddb:"range" dynamodbav:"sk"` // logical date, RFC3339
	RunID      string `dynamodbav:"run_id"`         // KSUID of the run holding the lock
	AcquiredAt int64  `dynamodbav:"acquired_at"`    // Unix timestamp when lock was acquired
	TTL        int64  `dynamodbav:"ttl"`            // Unix timestamp for DynamoDB TTL expiry
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	return ID(fmt.Sprintf("%s:%s", r.PK, r.SK))
}

// AcquireInput contains fields for acquiring an interval lock
type AcquireInput struct {
	DagID       string
	LogicalDate time.Time
	RunID       string
}

// ReleaseInput contains fields for releasing an interval lock
type ReleaseInput struct {
	ID    ID
	RunID string // must match the lock holder
}

// DAO provides data access operations for interval locks
type DAO struct {
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	return &DAO{
		table: db.MustTable(tableName, &Record{}),
	}
}

// Acquire takes the lock for an interval. It returns the current holder and
// whether input.RunID holds it; acquiring again with the same run id succeeds.
func (d *DAO) Acquire(ctx context.Context, input AcquireInput) (*Record, bool, error) {
	id := NewID(input.DagID, input.LogicalDate)

	existing, err := d.Find(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing lock: %w", err)
	}
	if existing != nil {
		return existing, existing.RunID == input.RunID, nil
	}

	now := time.Now()
	record := &Record{
		PK:         NewPK(input.DagID),
		SK:         NewSK(input.LogicalDate),
		RunID:      input.RunID,
		AcquiredAt: now.Unix(),
		TTL:        now.Add(lockTTL).Unix(),
	}

	err = d.table.Put(record).
		Condition("attribute_not_exists(#PK)").
		RunWithContext(ctx)
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if !errors.As(err, &conditionErr) {
			return nil, false, fmt.Errorf("failed to create lock: %w", err)
		}

		// another run took the lock between Find and Put
		holder, err := d.Find(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read lock holder: %w", err)
		}
		if holder == nil {
			return nil, false, fmt.Errorf("lock %s changed while acquiring", id)
		}
		return holder, holder.RunID == input.RunID, nil
	}

	return record, true, nil
}

// Find retrieves a lock record by ID
// Returns nil if not found
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// Release frees an interval so it can be dispatched again. It fails when the
// lock is held by a different run.
func (d *DAO) Release(ctx context.Context, input ReleaseInput) error {
	existing, err := d.Find(ctx, input.ID)
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}
	if existing == nil {
		return nil
	}
	if existing.RunID != input.RunID {
		return fmt.Errorf("lock not held by run %s (held by %s)", input.RunID, existing.RunID)
	}

	return d.Delete(ctx, input.ID)
}

// Delete removes a lock record
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk.String()).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	return nil
}
