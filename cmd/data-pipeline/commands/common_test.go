package commands

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/pipeline"
)

func TestInstancesInOrder(t *testing.T) {
	d, err := pipeline.NewDAG()
	require.NoError(t, err)

	observed := map[string]models.TaskInstance{
		"ingest_data_from_api": {TaskID: "ingest_data_from_api", State: models.TaskStateUpForRetry, TryNumber: 2, MaxTries: 4},
		"create_bucket":        {TaskID: "create_bucket", State: models.TaskStateSuccess, TryNumber: 1, MaxTries: 4},
	}

	instances, err := instancesInOrder(d, observed)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	assert.Equal(t, map[string]string{
		"create_bucket":        "SUCCESS",
		"ingest_data_from_api": "UP_FOR_RETRY",
		"process_data":         "PENDING",
		"upload_to_s3":         "PENDING",
	}, statesOf(instances))
	assert.Equal(t, "create_bucket", instances[0].TaskID)
	assert.Equal(t, 4, instances[3].MaxTries)
}

func TestWithDefault(t *testing.T) {
	assert.Equal(t, "dev-data-pipeline", withDefault("", "dev-data-pipeline"))
	assert.Equal(t, "custom", withDefault("custom", "dev-data-pipeline"))
}

func TestReportRun(t *testing.T) {
	d, err := pipeline.NewDAG()
	require.NoError(t, err)

	t.Run("no result", func(t *testing.T) {
		var buf bytes.Buffer
		planErr := fmt.Errorf("no runnable tasks among [process_data]")
		err := reportRun(&buf, d, nil, planErr, true)
		assert.Equal(t, planErr, err)
		assert.Empty(t, buf.String())
	})

	t.Run("finished", func(t *testing.T) {
		result := &executor.Result{
			Run:    models.Run{RunID: "run1"},
			Status: models.RunStatusSuccess,
			Tasks: map[string]models.TaskInstance{
				"create_bucket":        {TaskID: "create_bucket", State: models.TaskStateSuccess, TryNumber: 1, MaxTries: 4},
				"ingest_data_from_api": {TaskID: "ingest_data_from_api", State: models.TaskStateSuccess, TryNumber: 1, MaxTries: 4},
				"process_data":         {TaskID: "process_data", State: models.TaskStateSuccess, TryNumber: 1, MaxTries: 4},
				"upload_to_s3":         {TaskID: "upload_to_s3", State: models.TaskStateSuccess, TryNumber: 2, MaxTries: 4},
			},
			Results: map[string]models.Payload{
				"upload_to_s3": models.Payload("s3://my-bucket/processed_data.json"),
			},
		}

		var buf bytes.Buffer
		require.NoError(t, reportRun(&buf, d, result, nil, true))
		assert.Contains(t, buf.String(), "Run run1: SUCCESS")
		assert.Contains(t, buf.String(), "Uploaded: s3://my-bucket/processed_data.json")
		assert.Contains(t, buf.String(), "try 2/4")
		assert.Contains(t, buf.String(), "digraph")
	})
}
