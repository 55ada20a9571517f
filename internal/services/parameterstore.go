package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"gopkg.in/yaml.v3"

	"github.com/savaki/data-pipeline/internal/models"
)

const (
	ExecutorLocal         = "local"
	ExecutorStepFunctions = "stepfunctions"
)

// Config holds all application configuration values from Parameter Store
type Config struct {
	StateMachineArn    string `yaml:"state_machine_arn"`
	Executor           string `yaml:"executor"`
	DefaultBucketName  string `yaml:"default_bucket_name"`
	DefaultAPIURL      string `yaml:"default_api_url"`
	DefaultRegion      string `yaml:"default_region"`
	APITokenSecretName string `yaml:"api_token_secret_name"`
}

// RunDefaults returns the conf applied to runs that omit a field, e.g. scheduled runs
func (c *Config) RunDefaults() models.RunConf {
	return models.RunConf{
		BucketName: c.DefaultBucketName,
		Region:     c.DefaultRegion,
		APIURL:     c.DefaultAPIURL,
	}
}

func (c *Config) applyDefaults() {
	if c.Executor == "" {
		c.Executor = ExecutorLocal
	}
}

// parameter names relative to /{env}/data-pipeline
const (
	ParamStateMachineArn    = "state-machine-arn"
	paramExecutor           = "executor"
	paramDefaultBucketName  = "default-bucket-name"
	paramDefaultAPIURL      = "default-api-url"
	paramDefaultRegion      = "default-region"
	paramAPITokenSecretName = "api-token-secret-name"
)

// ParameterPath returns the fully qualified SSM name of a pipeline parameter
func ParameterPath(env, name string) string {
	return fmt.Sprintf("/%s/data-pipeline/%s", env, name)
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all application configuration from Parameter Store
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMAPI is the subset of the SSM client used by SSMParameterStore
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// PutParameter writes a pipeline parameter, e.g. the state machine ARN after deploy
func (s *SSMParameterStore) PutParameter(ctx context.Context, name, value string) error {
	path := ParameterPath(s.env, name)
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      types.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter %s: %w", path, err)
	}

	s.mu.Lock()
	s.cache[path] = value
	s.mu.Unlock()

	return nil
}

// GetConfig loads all application configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/data-pipeline", s.env)

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	get := func(name string) string {
		return params[ParameterPath(s.env, name)]
	}

	config := &Config{
		StateMachineArn:    get(ParamStateMachineArn),
		Executor:           get(paramExecutor),
		DefaultBucketName:  get(paramDefaultBucketName),
		DefaultAPIURL:      get(paramDefaultAPIURL),
		DefaultRegion:      get(paramDefaultRegion),
		APITokenSecretName: get(paramAPITokenSecretName),
	}
	config.applyDefaults()

	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		StateMachineArn:    os.Getenv("STATE_MACHINE_ARN"),
		Executor:           os.Getenv("EXECUTOR"),
		DefaultBucketName:  os.Getenv("DEFAULT_BUCKET_NAME"),
		DefaultAPIURL:      os.Getenv("DEFAULT_API_URL"),
		DefaultRegion:      os.Getenv("DEFAULT_REGION"),
		APITokenSecretName: os.Getenv("API_TOKEN_SECRET_NAME"),
	}
	config.applyDefaults()

	return config, nil
}

// YAMLParameterStore reads configuration from a local YAML file, one document
// shaped like Config plus an optional free-form parameters map
type YAMLParameterStore struct {
	path string

	once    sync.Once
	doc     yamlDocument
	loadErr error
}

type yamlDocument struct {
	Config     `yaml:",inline"`
	Parameters map[string]string `yaml:"parameters"`
}

// NewYAMLParameterStore creates a parameter store backed by the file at path
func NewYAMLParameterStore(path string) *YAMLParameterStore {
	return &YAMLParameterStore{path: path}
}

func (y *YAMLParameterStore) load() error {
	y.once.Do(func() {
		data, err := os.ReadFile(y.path)
		if err != nil {
			y.loadErr = fmt.Errorf("failed to read config file %s: %w", y.path, err)
			return
		}
		if err := yaml.Unmarshal(data, &y.doc); err != nil {
			y.loadErr = fmt.Errorf("failed to parse config file %s: %w", y.path, err)
			return
		}
	})
	return y.loadErr
}

// GetParameter returns a value from the parameters map, falling back to the
// environment
func (y *YAMLParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	if err := y.load(); err != nil {
		return "", err
	}
	if value, ok := y.doc.Parameters[name]; ok {
		return value, nil
	}
	return os.Getenv(name), nil
}

// GetConfig returns the Config section of the file
func (y *YAMLParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	if err := y.load(); err != nil {
		return nil, err
	}
	config := y.doc.Config
	config.Executor = strings.ToLower(config.Executor)
	config.applyDefaults()
	return &config, nil
}
