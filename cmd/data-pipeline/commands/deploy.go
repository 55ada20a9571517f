package commands

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/constants"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/orchestrator"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/services"
)

// DeployCommand returns the deploy command, which compiles the DAG into a
// Step Functions state machine and creates or updates it
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Create or update the Step Functions state machine for the DAG",
		Description: `Compiles the DAG into Amazon States Language, ensures the IAM role Step Functions
assumes, creates or updates the state machine and stores its ARN in SSM at
/{env}/data-pipeline/state-machine-arn.

The run-task and update-run-status Lambdas must already exist.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "State machine name (default {env}-data-pipeline)",
			},
			&cli.StringFlag{
				Name:  "run-task-function",
				Usage: "Name of the run-task Lambda (default {env}-data-pipeline-run-task)",
			},
			&cli.StringFlag{
				Name:  "update-run-status-function",
				Usage: "Name of the update-run-status Lambda (default {env}-data-pipeline-update-run-status)",
			},
			&cli.StringFlag{
				Name:  "role-name",
				Usage: "IAM role Step Functions assumes",
				Value: constants.StateMachineRoleName,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the state machine definition without deploying",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			env := c.String("env")

			container, err := newContainer(c)
			if err != nil {
				return err
			}

			p := di.MustGet[*pipeline.Pipeline](container)
			awsConfig := di.MustGet[aws.Config](container)
			iamService := di.MustGet[*services.IAMService](container)

			accountID, err := iamService.GetAWSAccountID(ctx)
			if err != nil {
				return err
			}
			region := awsConfig.Region

			name := withDefault(c.String("name"), env+"-data-pipeline")
			fns := orchestrator.Functions{
				RunTask:         orchestrator.LambdaARN(region, accountID, withDefault(c.String("run-task-function"), env+"-data-pipeline-run-task")),
				UpdateRunStatus: orchestrator.LambdaARN(region, accountID, withDefault(c.String("update-run-status-function"), env+"-data-pipeline-update-run-status")),
			}

			definition, err := orchestrator.Definition(p.DAG, fns)
			if err != nil {
				return err
			}

			if c.Bool("dry-run") {
				fmt.Println(definition)
				return nil
			}

			roleArn, err := iamService.EnsureStateMachineRole(ctx, c.String("role-name"), []string{fns.RunTask, fns.UpdateRunStatus})
			if err != nil {
				return err
			}

			deployer := orchestrator.NewDeployer(di.MustGet[*sfn.Client](container))
			arn, created, err := deployer.EnsureStateMachine(ctx, orchestrator.DeployInput{
				Name:       name,
				Region:     region,
				AccountID:  accountID,
				Definition: definition,
				RoleArn:    roleArn,
			})
			if err != nil {
				return err
			}

			if ssmClient := di.MustGet[*ssm.Client](container); ssmClient != nil {
				store := services.NewSSMParameterStore(ssmClient, env)
				if err := store.PutParameter(ctx, services.ParamStateMachineArn, arn); err != nil {
					return err
				}
			} else {
				logger.Warn().Msg("SSM disabled; set STATE_MACHINE_ARN to use this state machine")
			}

			logger.Info().
				Str("state_machine_arn", arn).
				Str("role_arn", roleArn).
				Bool("created", created).
				Msg("Deployed state machine")

			fmt.Println(arn)
			return nil
		},
	}
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
