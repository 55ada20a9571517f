package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
)

// SFNAPI is the subset of the Step Functions client in use
type SFNAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeStateMachine(ctx context.Context, params *sfn.DescribeStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.DescribeStateMachineOutput, error)
	CreateStateMachine(ctx context.Context, params *sfn.CreateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.CreateStateMachineOutput, error)
	UpdateStateMachine(ctx context.Context, params *sfn.UpdateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.UpdateStateMachineOutput, error)
}

// ExecutionRecorder records that a run is now owned by an execution
type ExecutionRecorder interface {
	ExecutionStarted(ctx context.Context, run models.Run, executionArn string) error
}

// Orchestrator manages Step Functions execution lifecycle
type Orchestrator struct {
	sfnClient       SFNAPI
	stateMachineArn string
	recorder        ExecutionRecorder
}

// New creates a new Orchestrator instance
func New(sfnClient SFNAPI, stateMachineArn string, recorder ExecutionRecorder) (*Orchestrator, error) {
	if stateMachineArn == "" {
		return nil, errors.ErrStateMachineARNRequired
	}
	return &Orchestrator{
		sfnClient:       sfnClient,
		stateMachineArn: stateMachineArn,
		recorder:        recorder,
	}, nil
}

// ExecutionName returns {dag_id}-{run_id}. Step Functions rejects a second
// execution with the same name.
func ExecutionName(run models.Run) string {
	return fmt.Sprintf("%s-%s", run.DagID, run.RunID)
}

// StartExecution starts a Step Functions execution for run and atomically
// updates the run record to RUNNING with the execution ARN
func (o *Orchestrator) StartExecution(ctx context.Context, run models.Run) (string, error) {
	input := models.StepFunctionInput{
		Run:     run,
		Results: map[string]models.TaskResult{},
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal step function input: %w", err)
	}

	result, err := o.sfnClient.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(o.stateMachineArn),
		Name:            aws.String(ExecutionName(run)),
		Input:           aws.String(string(inputJSON)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start step function execution: %w", err)
	}

	executionArn := aws.ToString(result.ExecutionArn)

	if o.recorder != nil {
		if err := o.recorder.ExecutionStarted(ctx, run, executionArn); err != nil {
			return "", fmt.Errorf("failed to update run status: %w", err)
		}
	}

	zerolog.Ctx(ctx).Info().
		Str("run_id", run.RunID).
		Str("execution_arn", executionArn).
		Msg("Started execution")

	return executionArn, nil
}

// Dispatch starts an execution for run
func (o *Orchestrator) Dispatch(ctx context.Context, run models.Run) error {
	_, err := o.StartExecution(ctx, run)
	return err
}
