package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client in use
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerService struct {
	client SecretsManagerAPI
}

// APITokenSecret is the JSON shape of the ingestion API token secret
type APITokenSecret struct {
	APIToken string `json:"api_token"`
}

func NewSecretsManagerService(cfg aws.Config) *SecretsManagerService {
	return NewSecretsManagerServiceWithClient(secretsmanager.NewFromConfig(cfg))
}

// NewSecretsManagerServiceWithClient is useful for testing
func NewSecretsManagerServiceWithClient(client SecretsManagerAPI) *SecretsManagerService {
	return &SecretsManagerService{
		client: client,
	}
}

// GetSecret retrieves a secret value by path from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	return *result.SecretString, nil
}

// GetAPIToken retrieves the bearer token for the ingestion API. The secret is
// either {"api_token": "..."} or the raw token.
func (s *SecretsManagerService) GetAPIToken(ctx context.Context, secretPath string) (string, error) {
	value, err := s.GetSecret(ctx, secretPath)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		if trimmed == "" {
			return "", fmt.Errorf("secret %s is empty", secretPath)
		}
		return trimmed, nil
	}

	var secret APITokenSecret
	if err := json.Unmarshal([]byte(trimmed), &secret); err != nil {
		return "", fmt.Errorf("failed to unmarshal API token secret: %w", err)
	}

	if secret.APIToken == "" {
		return "", fmt.Errorf("api_token field is empty in secret %s", secretPath)
	}

	return secret.APIToken, nil
}
