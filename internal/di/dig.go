// Package di wires the pipeline's AWS clients, DAOs, services and
// dispatchers with uber's dig. Binaries build a container with New and pull
// what they need with MustGet.
package di

import (
	"go.uber.org/dig"

	"github.com/savaki/data-pipeline/internal/services"
)

// Container is the subset of *dig.Container the binaries use
type Container interface {
	Invoke(function any, opts ...dig.InvokeOption) error
	Provide(constructor any, opts ...dig.ProvideOption) error
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// MustGet resolves T from container and panics when it cannot be built.
// Binaries call it during startup, where a missing dependency is fatal.
//
//	trigger := MustGet[*services.Trigger](container)
func MustGet[T any](container Container) (want T) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		panic(err)
	}
	return want
}

// New returns a container for env with every core provider registered. env is
// injectable as a plain string and selects table names and SSM paths.
//
//	container, err := New("dev", WithConfigFile("pipeline.yaml"))
func New(env string, opts ...Option) (Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	container := dig.New()
	if err := container.Provide(func() string { return env }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() ConfigFile { return o.configFile }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() StateMachineTask { return o.stateMachineTask }); err != nil {
		return nil, err
	}

	for _, provider := range core {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	// binary specific, e.g. ProvideGraphQL
	for _, provider := range o.providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

// core is provided to every container. Order does not matter to dig.
var core = []any{
	ProvideLogger,
	ProvideContext,
	ProvideAWSConfig,
	ProvideSSMClient,
	ProvideParameterStore,
	ProvideAppConfig,
	ProvideDynamoDB,
	ProvideStepFunctions,
	ProvideS3Client,
	ProvideRunDAO,
	ProvideTaskDAO,
	ProvideLockDAO,
	ProvideStorage,
	ProvideFetcher,
	ProvidePipeline,
	ProvideExecutor,
	ProvideLocalDispatcher,
	ProvideOrchestrator,
	ProvideDispatcher,
	ProvideValidator,
	ProvideTrigger,
	services.NewSecretsManagerService,
	services.NewIAMService,
	services.NewRunService,
}
