package constants

// IAM role names used by the Step Functions deployment
const (
	// StateMachineRoleName is the name of the role Step Functions assumes to
	// invoke the pipeline Lambdas
	StateMachineRoleName = "DataPipelineStateMachineRole"
)
