package rundao

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/ddb/v2/ddbtest"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

// Unit tests for key types

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		wantPK  PK
		wantSK  string
		wantErr bool
	}{
		{
			name:   "valid ID",
			id:     ID("complex_data_pipeline:2HFj3kLmNoPqRsTuVwXy"),
			wantPK: PK("complex_data_pipeline"),
			wantSK: "2HFj3kLmNoPqRsTuVwXy",
		},
		{
			name:    "missing colon",
			id:      ID("complex_data_pipeline"),
			wantErr: true,
		},
		{
			name:    "too many colons",
			id:      ID("a:b:c"),
			wantErr: true,
		},
		{
			name:    "empty run id",
			id:      ID("complex_data_pipeline:"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk, sk, err := ParseID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPK, pk)
			assert.Equal(t, tt.wantSK, sk)
			assert.Equal(t, tt.id, NewID(pk, sk))
		})
	}
}

func TestRecord_GetID(t *testing.T) {
	record := Record{PK: "dag", SK: "run"}
	assert.Equal(t, ID("dag:run"), record.GetID())

	pointer := Record{PK: latest, SK: "dag", ID: "dag:run"}
	assert.Equal(t, ID("dag:run"), pointer.GetID())
}

func TestRecord_Run(t *testing.T) {
	logicalDate := time.Date(2023, 1, 1, 0, 30, 0, 0, time.UTC)
	record := Record{
		PK:          "dag",
		SK:          "run",
		DagID:       "dag",
		RunType:     models.RunTypeManual,
		LogicalDate: logicalDate.Unix(),
		BucketName:  "bucket",
		Region:      "us-west-2",
		APIURL:      "https://example.com",
	}

	run := record.Run()
	assert.Equal(t, "dag", run.DagID)
	assert.Equal(t, "run", run.RunID)
	assert.Equal(t, models.RunTypeManual, run.RunType)
	assert.True(t, logicalDate.Equal(run.LogicalDate))
	assert.Equal(t, models.RunConf{BucketName: "bucket", Region: "us-west-2", APIURL: "https://example.com"}, run.Conf)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "dev-data-pipeline--runs", TableName("dev"))
}

// Integration tests against DynamoDB Local

type Data struct {
	DAO *DAO
}

func setup(t *testing.T) (ctx context.Context, data Data, cleanup func()) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("Skipping integration test, DYNAMODB_ENDPOINT not set")
	}

	ctx = context.Background()

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-west-2"),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("blah", "blah", ""),
		),
	)
	require.NoError(t, err)

	var (
		client    = dynamodb.NewFromConfig(cfg)
		db        = ddb.New(client)
		tableName = fmt.Sprintf("table-%v", ksuid.New().String())
		table     = db.MustTable(tableName, Record{})
		dao       = New(client, tableName)
	)

	err = table.CreateTableIfNotExists(ctx)
	require.NoError(t, err)

	return ctx, Data{DAO: dao}, func() {
		_ = table.DeleteTableIfExists(ctx)
	}
}

func newRun(dagID string) models.Run {
	return models.Run{
		DagID:       dagID,
		RunID:       ksuid.New().String(),
		RunType:     models.RunTypeScheduled,
		LogicalDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Conf: models.RunConf{
			BucketName: "my-bucket",
			Region:     "us-west-2",
			APIURL:     "https://api.example.com/data",
		},
	}
}

func TestDAO(t *testing.T) {
	ddbtest.WithTable[Data](t, setup, func(t *testing.T, ctx context.Context, data Data) {
		dao := data.DAO

		t.Run("CreateAndFind", func(t *testing.T) {
			run := newRun("create-dag")
			created, err := dao.Create(ctx, CreateInput{Run: run})
			require.NoError(t, err)
			assert.Equal(t, models.RunStatusQueued, created.Status)
			assert.NotZero(t, created.CreatedAt)

			found, err := dao.Find(ctx, created.GetID())
			require.NoError(t, err)
			assert.Equal(t, run, found.Run())
			assert.Equal(t, models.RunStatusQueued, found.Status)
		})

		t.Run("FindNotFound", func(t *testing.T) {
			_, err := dao.Find(ctx, NewID("missing", ksuid.New().String()))
			assert.ErrorIs(t, err, errors.ErrRunNotFound)
		})

		t.Run("Delete", func(t *testing.T) {
			created, err := dao.Create(ctx, CreateInput{Run: newRun("delete-dag")})
			require.NoError(t, err)

			require.NoError(t, dao.Delete(ctx, created.GetID()))

			_, err = dao.Find(ctx, created.GetID())
			assert.ErrorIs(t, err, errors.ErrRunNotFound)
		})

		t.Run("StartExecutionThenFail", func(t *testing.T) {
			created, err := dao.Create(ctx, CreateInput{Run: newRun("status-dag")})
			require.NoError(t, err)

			arn := "arn:aws:states:us-west-2:123456789012:execution:pipeline:run"
			require.NoError(t, dao.StartExecution(ctx, created.PK, created.SK, arn))

			found, err := dao.Find(ctx, created.GetID())
			require.NoError(t, err)
			assert.Equal(t, models.RunStatusRunning, found.Status)
			require.NotNil(t, found.ExecutionArn)
			assert.Equal(t, arn, *found.ExecutionArn)
			assert.Nil(t, found.FinishedAt)

			status := models.RunStatusFailed
			msg := "upload_to_s3 failed"
			require.NoError(t, dao.UpdateStatus(ctx, UpdateInput{PK: created.PK, SK: created.SK, Status: &status, ErrorMsg: &msg}))

			found, err = dao.Find(ctx, created.GetID())
			require.NoError(t, err)
			assert.Equal(t, models.RunStatusFailed, found.Status)
			require.NotNil(t, found.ErrorMsg)
			assert.Equal(t, msg, *found.ErrorMsg)
			assert.NotNil(t, found.FinishedAt)
		})

		t.Run("UpdateStatusRequiresStatus", func(t *testing.T) {
			err := dao.UpdateStatus(ctx, UpdateInput{PK: "dag", SK: "run"})
			assert.Error(t, err)
		})

		t.Run("QueryMostRecentFirst", func(t *testing.T) {
			var ids []string
			for i := 0; i < 3; i++ {
				created, err := dao.Create(ctx, CreateInput{Run: newRun("query-dag")})
				require.NoError(t, err)
				ids = append(ids, created.SK)
				time.Sleep(1100 * time.Millisecond) // KSUIDs have one second resolution
			}

			records, err := dao.Query(ctx, NewPK("query-dag"), 0)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, ids[2], records[0].SK)
			assert.Equal(t, ids[0], records[2].SK)

			limited, err := dao.Query(ctx, NewPK("query-dag"), 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})

		t.Run("QueryLatestRuns", func(t *testing.T) {
			first, err := dao.Create(ctx, CreateInput{Run: newRun("latest-dag")})
			require.NoError(t, err)
			second, err := dao.Create(ctx, CreateInput{Run: newRun("latest-dag")})
			require.NoError(t, err)

			status := models.RunStatusSuccess
			require.NoError(t, dao.UpdateStatus(ctx, UpdateInput{PK: first.PK, SK: first.SK, Status: &status}))
			require.NoError(t, dao.UpdateStatus(ctx, UpdateInput{PK: second.PK, SK: second.SK, Status: &status}))

			latestRuns, err := dao.QueryLatestRuns(ctx)
			require.NoError(t, err)

			var found bool
			for _, record := range latestRuns {
				if record.DagID == "latest-dag" {
					found = true
					assert.Equal(t, second.SK, record.SK)
				}
			}
			assert.True(t, found)
		})
	})
}
