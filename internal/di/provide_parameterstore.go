package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation. A config
// file wins over SSM, and SSM wins over environment variables.
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string, configFile ConfigFile) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if configFile != "" {
		logger.Info().Str("config_file", string(configFile)).Msg("Using config file for configuration")
		return services.NewYAMLParameterStore(string(configFile))
	}

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore(env)
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads application configuration from the parameter store
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info().
		Str("executor", config.Executor).
		Str("default_bucket_name", config.DefaultBucketName).
		Str("default_region", config.DefaultRegion).
		Bool("has_state_machine", config.StateMachineArn != "").
		Bool("has_api_token", config.APITokenSecretName != "").
		Msg("Configuration loaded successfully")

	return config, nil
}
