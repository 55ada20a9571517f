package di

// ConfigFile is the path of a local YAML configuration file. When set it
// replaces SSM Parameter Store and environment variables.
type ConfigFile string

// StateMachineTask is true in binaries whose tasks run inside the state
// machine, where results must fit the execution state
type StateMachineTask bool

// Option configures New
type Option func(*options)

// WithConfigFile reads configuration from the YAML file at path
func WithConfigFile(path string) Option {
	return func(opts *options) {
		opts.configFile = ConfigFile(path)
	}
}

// WithStateMachineTask applies the execution state limits to fetched payloads
// and task results regardless of the configured executor
func WithStateMachineTask() Option {
	return func(opts *options) {
		opts.stateMachineTask = true
	}
}

// WithProviders registers constructors beyond the core set. A provider for a
// type core already builds makes New fail.
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	configFile       ConfigFile
	stateMachineTask StateMachineTask
	providers        []any
}
