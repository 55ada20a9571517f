package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/di"
	pipelineerrors "github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/models"
)

// TaskRunner executes a single try of a task
type TaskRunner interface {
	RunTask(ctx context.Context, run models.Run, taskID string, tryNumber int, results map[string]models.Payload) (models.Payload, error)
}

type Handler struct {
	runner TaskRunner
}

func NewHandler(runner TaskRunner) *Handler {
	return &Handler{runner: runner}
}

// HandleRunTask runs one try of input.TaskID. Step Functions counts retries
// from zero, so the try number is RetryCount+1. A returned error makes the
// state machine retry or fail the task; a result too large for the execution
// state fails it at once.
func (h *Handler) HandleRunTask(ctx context.Context, input *models.TaskInput) (*models.TaskResult, error) {
	logger := zerolog.Ctx(ctx)

	tryNumber := input.RetryCount + 1
	logger.Info().
		Str("dag_id", input.Run.DagID).
		Str("run_id", input.Run.RunID).
		Str("task_id", input.TaskID).
		Int("try_number", tryNumber).
		Msg("Running task")

	results := make(map[string]models.Payload, len(input.Results))
	for taskID, result := range input.Results {
		results[taskID] = result.Payload
	}

	payload, err := h.runner.RunTask(ctx, input.Run, input.TaskID, tryNumber, results)
	var tooLarge *pipelineerrors.PayloadTooLargeError
	if errors.As(err, &tooLarge) {
		// unwrapped so the Lambda error name matches the non-retryable retrier
		return nil, tooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("task %s try %d failed: %w", input.TaskID, tryNumber, err)
	}

	return &models.TaskResult{Payload: payload}, nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "run-task").Logger()

	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		logger.Error().Msg("ENV or ENVIRONMENT variable is required")
		os.Exit(1)
	}

	newHandler := func() (*Handler, error) {
		container, err := di.New(env, di.WithStateMachineTask())
		if err != nil {
			return nil, fmt.Errorf("failed to setup DI container: %w", err)
		}
		return NewHandler(di.MustGet[*executor.Executor](container)), nil
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		handler, err := newHandler()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		wrappedHandler := func(ctx context.Context, input *models.TaskInput) (*models.TaskResult, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleRunTask(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "run-task",
		Usage: "Run a single pipeline task the way the state machine does",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Usage:    "Path to a JSON task input document",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.String("input"))
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			var input models.TaskInput
			if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("failed to parse input: %w", err)
			}

			handler, err := newHandler()
			if err != nil {
				return err
			}

			result, err := handler.HandleRunTask(logger.WithContext(c.Context), &input)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
