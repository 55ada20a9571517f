package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSecretsManagerClient struct {
	secrets map[string]string
}

func (m *mockSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	value, ok := m.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, fmt.Errorf("ResourceNotFoundException: %s", aws.ToString(params.SecretId))
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func TestSecretsManagerService_GetAPIToken(t *testing.T) {
	service := NewSecretsManagerServiceWithClient(&mockSecretsManagerClient{
		secrets: map[string]string{
			"json":       `{"api_token":"from-json"}`,
			"raw":        "  raw-token\n",
			"empty":      "",
			"empty-json": `{"api_token":""}`,
			"bad-json":   `{"api_token":`,
		},
	})

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr string
	}{
		{name: "json", path: "json", want: "from-json"},
		{name: "raw", path: "raw", want: "raw-token"},
		{name: "empty", path: "empty", wantErr: "secret empty is empty"},
		{name: "empty json field", path: "empty-json", wantErr: "api_token field is empty"},
		{name: "bad json", path: "bad-json", wantErr: "failed to unmarshal"},
		{name: "missing", path: "missing", wantErr: "ResourceNotFoundException"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.GetAPIToken(context.Background(), tt.path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
