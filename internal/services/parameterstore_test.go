package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSMClient struct {
	params   map[string]string
	getCalls int
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls++
	value, ok := m.params[aws.ToString(params.Name)]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Name: params.Name, Value: aws.String(value)},
	}, nil
}

func (m *mockSSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	var out []types.Parameter
	for name, value := range m.params {
		if strings.HasPrefix(name, aws.ToString(params.Path)+"/") {
			out = append(out, types.Parameter{Name: aws.String(name), Value: aws.String(value)})
		}
	}
	return &ssm.GetParametersByPathOutput{Parameters: out}, nil
}

func (m *mockSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if m.params == nil {
		m.params = map[string]string{}
	}
	m.params[aws.ToString(params.Name)] = aws.ToString(params.Value)
	return &ssm.PutParameterOutput{}, nil
}

func TestParameterPath(t *testing.T) {
	assert.Equal(t, "/dev/data-pipeline/state-machine-arn", ParameterPath("dev", "state-machine-arn"))
}

func TestSSMParameterStore(t *testing.T) {
	ctx := context.Background()
	client := &mockSSMClient{
		params: map[string]string{
			"/dev/data-pipeline/executor":            "stepfunctions",
			"/dev/data-pipeline/default-bucket-name": "dev-bucket",
			"/dev/data-pipeline/default-api-url":     "https://api.example.com",
			"/prod/data-pipeline/executor":           "local",
		},
	}
	store := NewSSMParameterStore(client, "dev")

	config, err := store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExecutorStepFunctions, config.Executor)
	assert.Equal(t, "dev-bucket", config.DefaultBucketName)
	assert.Equal(t, "https://api.example.com", config.DefaultAPIURL)
	assert.Empty(t, config.StateMachineArn)
	assert.Equal(t, "dev-bucket", config.RunDefaults().BucketName)

	t.Run("cached after GetConfig", func(t *testing.T) {
		value, err := store.GetParameter(ctx, "/dev/data-pipeline/default-bucket-name")
		require.NoError(t, err)
		assert.Equal(t, "dev-bucket", value)
		assert.Zero(t, client.getCalls)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.PutParameter(ctx, "state-machine-arn", "arn:aws:states:us-west-2:123:stateMachine:x"))
		assert.Equal(t, "arn:aws:states:us-west-2:123:stateMachine:x", client.params["/dev/data-pipeline/state-machine-arn"])

		config, err := store.GetConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "arn:aws:states:us-west-2:123:stateMachine:x", config.StateMachineArn)
	})

	t.Run("missing parameter", func(t *testing.T) {
		_, err := store.GetParameter(ctx, "/dev/data-pipeline/nope")
		assert.Error(t, err)
	})

	t.Run("default executor", func(t *testing.T) {
		config, err := NewSSMParameterStore(&mockSSMClient{}, "staging").GetConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, ExecutorLocal, config.Executor)
	})
}

func TestEnvParameterStore(t *testing.T) {
	t.Setenv("EXECUTOR", "")
	t.Setenv("DEFAULT_BUCKET_NAME", "env-bucket")
	t.Setenv("DEFAULT_REGION", "eu-west-1")
	t.Setenv("STATE_MACHINE_ARN", "arn:sm")

	store := NewEnvParameterStore("local")
	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecutorLocal, config.Executor)
	assert.Equal(t, "env-bucket", config.DefaultBucketName)
	assert.Equal(t, "eu-west-1", config.DefaultRegion)
	assert.Equal(t, "arn:sm", config.StateMachineArn)

	value, err := store.GetParameter(context.Background(), "DEFAULT_BUCKET_NAME")
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", value)
}

func TestYAMLParameterStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
executor: StepFunctions
state_machine_arn: arn:aws:states:us-west-2:123:stateMachine:pipeline
default_bucket_name: yaml-bucket
default_api_url: https://api.example.com/data
parameters:
  custom: value
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store := NewYAMLParameterStore(path)
	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecutorStepFunctions, config.Executor)
	assert.Equal(t, "yaml-bucket", config.DefaultBucketName)
	assert.Equal(t, "https://api.example.com/data", config.DefaultAPIURL)
	assert.Equal(t, "arn:aws:states:us-west-2:123:stateMachine:pipeline", config.StateMachineArn)

	value, err := store.GetParameter(context.Background(), "custom")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	t.Run("missing file", func(t *testing.T) {
		_, err := NewYAMLParameterStore(filepath.Join(t.TempDir(), "nope.yaml")).GetConfig(context.Background())
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("executor: [unterminated"), 0o600))
		_, err := NewYAMLParameterStore(bad).GetConfig(context.Background())
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}
