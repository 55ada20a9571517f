package main

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/pipeline"
)

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

type mockRunStore struct {
	observed map[string]models.TaskInstance
	changed  []models.TaskInstance
	status   models.RunStatus
	errMsg   string
}

func (m *mockRunStore) RunFinished(ctx context.Context, run models.Run, status models.RunStatus, errMsg string) error {
	m.status = status
	m.errMsg = errMsg
	return nil
}

func (m *mockRunStore) TaskChanged(ctx context.Context, run models.Run, ti models.TaskInstance) error {
	m.changed = append(m.changed, ti)
	return nil
}

func (m *mockRunStore) TaskInstances(ctx context.Context, dagID, runID string) (map[string]models.TaskInstance, error) {
	return m.observed, nil
}

func newTestHandler(t *testing.T, store *mockRunStore) *Handler {
	d, err := pipeline.NewDAG()
	require.NoError(t, err)
	return NewHandler(d, store)
}

func TestHandleUpdateRunStatus_Success(t *testing.T) {
	store := &mockRunStore{}
	err := newTestHandler(t, store).HandleUpdateRunStatus(testContext(), &models.RunStatusInput{
		Run:    models.Run{DagID: "complex_data_pipeline", RunID: "run1"},
		Status: models.RunStatusSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, store.status)
	assert.Empty(t, store.changed)
}

func TestHandleUpdateRunStatus_FailedMarksDownstream(t *testing.T) {
	store := &mockRunStore{
		observed: map[string]models.TaskInstance{
			"create_bucket":        {TaskID: "create_bucket", State: models.TaskStateSuccess, TryNumber: 1, MaxTries: 4},
			"ingest_data_from_api": {TaskID: "ingest_data_from_api", State: models.TaskStateFailed, TryNumber: 4, MaxTries: 4},
		},
	}

	// shaped like the mark_failed Payload
	raw := `{"run": {"dag_id": "complex_data_pipeline", "run_id": "run1"}, "status": "FAILED", "error": "task ingest_data_from_api try 4 failed: unexpected HTTP status: 503"}`
	var input models.RunStatusInput
	require.NoError(t, json.Unmarshal([]byte(raw), &input))

	require.NoError(t, newTestHandler(t, store).HandleUpdateRunStatus(testContext(), &input))

	assert.Equal(t, models.RunStatusFailed, store.status)
	assert.Contains(t, store.errMsg, "unexpected HTTP status: 503")

	require.Len(t, store.changed, 2)
	assert.Equal(t, "process_data", store.changed[0].TaskID)
	assert.Equal(t, "upload_to_s3", store.changed[1].TaskID)
	for _, ti := range store.changed {
		assert.Equal(t, models.TaskStateUpstreamFailed, ti.State)
	}
}

func TestHandleUpdateRunStatus_RejectsNonTerminal(t *testing.T) {
	store := &mockRunStore{}
	err := newTestHandler(t, store).HandleUpdateRunStatus(testContext(), &models.RunStatusInput{
		Status: models.RunStatusRunning,
	})
	assert.Error(t, err)
	assert.Empty(t, store.status)
}

func TestHandleUpdateRunStatus_FailedInFlight(t *testing.T) {
	store := &mockRunStore{
		observed: map[string]models.TaskInstance{
			"create_bucket":        {TaskID: "create_bucket", State: models.TaskStateSuccess, TryNumber: 1, MaxTries: 4},
			"ingest_data_from_api": {TaskID: "ingest_data_from_api", State: models.TaskStateRunning, TryNumber: 4, MaxTries: 4},
		},
	}

	err := newTestHandler(t, store).HandleUpdateRunStatus(testContext(), &models.RunStatusInput{
		Run:    models.Run{DagID: "complex_data_pipeline", RunID: "run1"},
		Status: models.RunStatusFailed,
		Error:  "Task timed out after 900.00 seconds",
	})
	require.NoError(t, err)

	require.Len(t, store.changed, 3)
	assert.Equal(t, "ingest_data_from_api", store.changed[0].TaskID)
	assert.Equal(t, models.TaskStateFailed, store.changed[0].State)
	assert.Equal(t, "Task timed out after 900.00 seconds", store.changed[0].ErrorMsg)
	assert.Equal(t, models.TaskStateUpstreamFailed, store.changed[1].State)
	assert.Equal(t, models.TaskStateUpstreamFailed, store.changed[2].State)
	assert.Equal(t, models.RunStatusFailed, store.status)
}
