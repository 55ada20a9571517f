package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/rs/zerolog"
)

// StateMachineARN returns the ARN a state machine named name has in the given
// region and account
func StateMachineARN(region, accountID, name string) string {
	return fmt.Sprintf("arn:aws:states:%s:%s:stateMachine:%s", region, accountID, name)
}

// LambdaARN returns the ARN of a Lambda function
func LambdaARN(region, accountID, name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", region, accountID, name)
}

// DeployInput describes the state machine to create or update
type DeployInput struct {
	Name       string
	Region     string
	AccountID  string
	Definition string
	RoleArn    string
}

// Deployer creates or updates the pipeline state machine
type Deployer struct {
	sfnClient SFNAPI
}

func NewDeployer(sfnClient SFNAPI) *Deployer {
	return &Deployer{sfnClient: sfnClient}
}

// EnsureStateMachine updates the state machine when it exists and creates it
// otherwise. It returns the state machine ARN.
func (d *Deployer) EnsureStateMachine(ctx context.Context, input DeployInput) (string, bool, error) {
	logger := zerolog.Ctx(ctx)
	arn := StateMachineARN(input.Region, input.AccountID, input.Name)

	_, err := d.sfnClient.DescribeStateMachine(ctx, &sfn.DescribeStateMachineInput{
		StateMachineArn: aws.String(arn),
	})

	var notFound *types.StateMachineDoesNotExist
	switch {
	case err == nil:
		_, err = d.sfnClient.UpdateStateMachine(ctx, &sfn.UpdateStateMachineInput{
			StateMachineArn: aws.String(arn),
			Definition:      aws.String(input.Definition),
			RoleArn:         aws.String(input.RoleArn),
		})
		if err != nil {
			return "", false, fmt.Errorf("failed to update state machine %s: %w", input.Name, err)
		}
		logger.Info().Str("state_machine_arn", arn).Msg("Updated state machine")
		return arn, false, nil

	case errors.As(err, &notFound):
		result, err := d.sfnClient.CreateStateMachine(ctx, &sfn.CreateStateMachineInput{
			Name:       aws.String(input.Name),
			Definition: aws.String(input.Definition),
			RoleArn:    aws.String(input.RoleArn),
			Type:       types.StateMachineTypeStandard,
		})
		if err != nil {
			return "", false, fmt.Errorf("failed to create state machine %s: %w", input.Name, err)
		}
		arn = aws.ToString(result.StateMachineArn)
		logger.Info().Str("state_machine_arn", arn).Msg("Created state machine")
		return arn, true, nil

	default:
		return "", false, fmt.Errorf("failed to describe state machine %s: %w", input.Name, err)
	}
}
