package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"

	"github.com/savaki/data-pipeline/internal/constants"
	"github.com/savaki/data-pipeline/internal/dao/lockdao"
	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/orchestrator"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/policy"
	"github.com/savaki/data-pipeline/internal/services"
)

func ProvideStorage(client *s3.Client) *services.Storage {
	return services.NewStorage(client)
}

// stateLimited reports whether task results travel through the Step Functions
// execution state
func stateLimited(config *services.Config, inStateMachine StateMachineTask) bool {
	return bool(inStateMachine) || config.Executor == services.ExecutorStepFunctions
}

func ProvideFetcher(config *services.Config, secrets *services.SecretsManagerService, inStateMachine StateMachineTask) *services.Fetcher {
	opts := []services.FetcherOption{
		services.WithSecretToken(secrets, config.APITokenSecretName),
	}
	if stateLimited(config, inStateMachine) {
		opts = append(opts, services.WithMaxFetchBytes(constants.StepFunctionsMaxFetchBytes))
	}
	return services.NewFetcher(nil, opts...)
}

func ProvidePipeline(storage *services.Storage, fetcher *services.Fetcher) (*pipeline.Pipeline, error) {
	return pipeline.New(storage, fetcher)
}

func ProvideExecutor(p *pipeline.Pipeline, runs *services.RunService, config *services.Config, inStateMachine StateMachineTask) (*executor.Executor, error) {
	opts := []executor.Option{
		executor.WithRecorder(runs),
	}
	if stateLimited(config, inStateMachine) {
		opts = append(opts, executor.WithOutputCheck(orchestrator.CheckStateSize))
	}
	return executor.New(p.DAG, p.Operators, opts...)
}

// ProvideLocalDispatcher runs dispatched runs in the background of this
// process. Callers must Shutdown before exiting.
func ProvideLocalDispatcher(exec *executor.Executor) *executor.Dispatcher {
	return executor.NewDispatcher(exec, true)
}

// ProvideOrchestrator provides the Step Functions dispatcher. It fails when no
// state machine has been deployed for the environment.
func ProvideOrchestrator(sfnClient *sfn.Client, runs *services.RunService, config *services.Config) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(sfnClient, config.StateMachineArn, runs)
}

// ProvideDispatcher selects where triggered runs execute based on the
// configured executor
func ProvideDispatcher(config *services.Config, sfnClient *sfn.Client, runs *services.RunService, local *executor.Dispatcher) (services.Dispatcher, error) {
	switch config.Executor {
	case services.ExecutorLocal:
		return local, nil
	case services.ExecutorStepFunctions:
		return ProvideOrchestrator(sfnClient, runs, config)
	default:
		return nil, fmt.Errorf("unknown executor %q", config.Executor)
	}
}

func ProvideValidator(ctx context.Context, env string) (*policy.Validator, error) {
	return policy.NewValidator(ctx, env)
}

func ProvideTrigger(p *pipeline.Pipeline, config *services.Config, validator *policy.Validator, dispatcher services.Dispatcher, runs *services.RunService, locks *lockdao.DAO) *services.Trigger {
	return services.NewTrigger(p.DAG.ID, config.RunDefaults(), validator, dispatcher,
		services.WithRunStore(runs),
		services.WithIntervalLock(locks),
	)
}
