package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/services"
)

// RunStore records the outcome of runs and their task instances
type RunStore interface {
	RunFinished(ctx context.Context, run models.Run, status models.RunStatus, errMsg string) error
	TaskChanged(ctx context.Context, run models.Run, ti models.TaskInstance) error
	TaskInstances(ctx context.Context, dagID, runID string) (map[string]models.TaskInstance, error)
}

type Handler struct {
	dag   *dag.DAG
	store RunStore
}

func NewHandler(d *dag.DAG, store RunStore) *Handler {
	return &Handler{
		dag:   d,
		store: store,
	}
}

// HandleUpdateRunStatus records the terminal status of a run. On failure the
// task that was in flight is marked FAILED and the tasks the state machine
// never reached UPSTREAM_FAILED first.
func (h *Handler) HandleUpdateRunStatus(ctx context.Context, input *models.RunStatusInput) error {
	logger := zerolog.Ctx(ctx)

	logger.Info().
		Str("dag_id", input.Run.DagID).
		Str("run_id", input.Run.RunID).
		Str("status", string(input.Status)).
		Msg("Updating run status")

	if !input.Status.IsTerminal() {
		return fmt.Errorf("run status %q is not terminal", input.Status)
	}

	if input.Status == models.RunStatusFailed {
		observed, err := h.store.TaskInstances(ctx, input.Run.DagID, input.Run.RunID)
		if err != nil {
			return err
		}

		marked, err := executor.Reconcile(h.dag, observed, input.Error)
		if err != nil {
			return fmt.Errorf("failed to reconcile task states: %w", err)
		}
		for _, ti := range marked {
			if err := h.store.TaskChanged(ctx, input.Run, ti); err != nil {
				return fmt.Errorf("failed to mark %s %s: %w", ti.TaskID, ti.State, err)
			}
		}
	}

	if err := h.store.RunFinished(ctx, input.Run, input.Status, input.Error); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	logger.Info().
		Str("run_id", input.Run.RunID).
		Msg("Successfully updated run status")

	return nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "update-run-status").Logger()

	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		logger.Error().Msg("ENV or ENVIRONMENT variable is required")
		os.Exit(1)
	}

	newHandler := func() (*Handler, error) {
		container, err := di.New(env)
		if err != nil {
			return nil, fmt.Errorf("failed to setup DI container: %w", err)
		}
		return NewHandler(
			di.MustGet[*pipeline.Pipeline](container).DAG,
			di.MustGet[*services.RunService](container),
		), nil
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		handler, err := newHandler()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		wrappedHandler := func(ctx context.Context, input *models.RunStatusInput) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleUpdateRunStatus(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "update-run-status",
		Usage: "Record the final status of a pipeline run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dag-id",
				Usage: "DAG id",
				Value: "complex_data_pipeline",
			},
			&cli.StringFlag{
				Name:     "run-id",
				Usage:    "Run id (KSUID)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "status",
				Usage:    "Run status (SUCCESS, FAILED)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "error-msg",
				Usage: "Error message (optional)",
			},
		},
		Action: func(c *cli.Context) error {
			handler, err := newHandler()
			if err != nil {
				return err
			}

			input := &models.RunStatusInput{
				Run: models.Run{
					DagID: c.String("dag-id"),
					RunID: c.String("run-id"),
				},
				Status: models.RunStatus(c.String("status")),
				Error:  c.String("error-msg"),
			}
			return handler.HandleUpdateRunStatus(logger.WithContext(c.Context), input)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
