package di

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/graph-gophers/graphql-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/data-pipeline/internal/constants"
	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/orchestrator"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/services"
)

type Database struct {
	Name string
}

type Repository struct {
	DB  *Database
	Env string
}

// offline keeps the container from reaching AWS while resolving providers
func offline(t *testing.T) {
	t.Setenv("DISABLE_SSM", "true")
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("EXECUTOR", "")
	t.Setenv("STATE_MACHINE_ARN", "")
	t.Setenv("DEFAULT_BUCKET_NAME", "")
	t.Setenv("DEFAULT_API_URL", "")
}

func TestNew_WithProviders(t *testing.T) {
	container, err := New("staging",
		WithProviders(
			func() *Database { return &Database{Name: "runs"} },
			func(db *Database, env string) *Repository { return &Repository{DB: db, Env: env} },
		),
	)
	require.NoError(t, err)

	repo := MustGet[*Repository](container)
	assert.Equal(t, "runs", repo.DB.Name)
	assert.Equal(t, "staging", repo.Env)
}

func TestNew_DuplicateProvider(t *testing.T) {
	_, err := New("dev", WithProviders(ProvideLogger))
	assert.Error(t, err)
}

func TestMustGet_Panics(t *testing.T) {
	container, err := New("dev")
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustGet[*Repository](container)
	})
}

func TestCore_LocalExecutor(t *testing.T) {
	offline(t)
	t.Setenv("DEFAULT_BUCKET_NAME", "pipeline-bucket")

	container, err := New("dev")
	require.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, services.ExecutorLocal, config.Executor)
	assert.Equal(t, "pipeline-bucket", config.DefaultBucketName)

	p := MustGet[*pipeline.Pipeline](container)
	assert.Equal(t, "complex_data_pipeline", p.DAG.ID)

	dispatcher := MustGet[services.Dispatcher](container)
	assert.IsType(t, &executor.Dispatcher{}, dispatcher)

	assert.NotNil(t, MustGet[*services.Trigger](container))
}

func TestCore_StepFunctionsExecutor(t *testing.T) {
	offline(t)
	t.Setenv("EXECUTOR", "stepfunctions")

	t.Run("missing state machine", func(t *testing.T) {
		container, err := New("dev")
		require.NoError(t, err)
		assert.Panics(t, func() {
			MustGet[services.Dispatcher](container)
		})
	})

	t.Run("deployed", func(t *testing.T) {
		t.Setenv("STATE_MACHINE_ARN", "arn:aws:states:us-west-2:123456789012:stateMachine:dev-data-pipeline")

		container, err := New("dev")
		require.NoError(t, err)
		assert.IsType(t, &orchestrator.Orchestrator{}, MustGet[services.Dispatcher](container))
	})
}

func TestProvideFetcher_StateLimits(t *testing.T) {
	body := strings.Repeat("x", constants.StepFunctionsMaxFetchBytes+1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	fetch := func(t *testing.T, opts ...Option) error {
		container, err := New("dev", opts...)
		require.NoError(t, err)
		_, err = MustGet[*services.Fetcher](container).Fetch(context.Background(), server.URL)
		return err
	}

	t.Run("local", func(t *testing.T) {
		offline(t)
		assert.NoError(t, fetch(t))
	})

	t.Run("stepfunctions", func(t *testing.T) {
		offline(t)
		t.Setenv("EXECUTOR", "stepfunctions")
		t.Setenv("STATE_MACHINE_ARN", "arn:aws:states:us-west-2:123456789012:stateMachine:dev-data-pipeline")
		assert.ErrorIs(t, fetch(t), errors.ErrPayloadTooLarge)
	})

	t.Run("state machine task", func(t *testing.T) {
		offline(t)
		assert.ErrorIs(t, fetch(t, WithStateMachineTask()), errors.ErrPayloadTooLarge)
	})
}

func TestCore_ConfigFile(t *testing.T) {
	offline(t)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := "executor: local\ndefault_bucket_name: from-file\ndefault_api_url: https://api.example.com/data\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	container, err := New("dev", WithConfigFile(path))
	require.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, "from-file", config.DefaultBucketName)
	assert.Equal(t, "https://api.example.com/data", config.RunDefaults().APIURL)
}

func TestProvideGraphQL(t *testing.T) {
	offline(t)

	container, err := New("dev", WithProviders(ProvideGraphQL))
	require.NoError(t, err)

	schema := MustGet[*graphql.Schema](container)
	resp := schema.Exec(context.Background(), `{ ok dag { id } }`, "", nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"ok":"ok","dag":{"id":"complex_data_pipeline"}}`, string(resp.Data))
}
