package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/dao/lockdao"
	"github.com/savaki/data-pipeline/internal/di"
	pipelineerrors "github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/orchestrator"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/policy"
	"github.com/savaki/data-pipeline/internal/scheduler"
	"github.com/savaki/data-pipeline/internal/services"
)

// RunTrigger starts runs
type RunTrigger interface {
	Trigger(ctx context.Context, input services.TriggerInput) (models.Run, error)
}

type Handler struct {
	dag     *dag.DAG
	trigger RunTrigger
}

func NewHandler(d *dag.DAG, trigger RunTrigger) *Handler {
	return &Handler{
		dag:     d,
		trigger: trigger,
	}
}

// HandleScheduledEvent starts the scheduled run for the interval that ended
// at the event time. Events before the first full interval are ignored.
func (h *Handler) HandleScheduledEvent(ctx context.Context, event events.CloudWatchEvent) error {
	logger := zerolog.Ctx(ctx)

	fired := event.Time
	if fired.IsZero() {
		fired = time.Now()
	}

	logicalDate, ok := scheduler.LatestLogicalDate(h.dag.DefaultArgs.StartDate, h.dag.Schedule, fired.UTC())
	if !ok {
		logger.Info().
			Time("fired", fired).
			Msg("No complete interval yet, skipping")
		return nil
	}

	run, err := h.trigger.Trigger(ctx, services.TriggerInput{
		RunType:     models.RunTypeScheduled,
		LogicalDate: logicalDate,
	})
	if errors.Is(err, pipelineerrors.ErrAlreadyScheduled) {
		logger.Info().
			Str("event_id", event.ID).
			Time("logical_date", logicalDate).
			Msg("Interval already scheduled, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to trigger scheduled run: %w", err)
	}

	logger.Info().
		Str("event_id", event.ID).
		Str("run_id", run.RunID).
		Time("logical_date", logicalDate).
		Msg("Triggered scheduled run")

	return nil
}

// newTrigger always dispatches to Step Functions; the Lambda cannot outlive
// a local run
func newTrigger(container di.Container) *services.Trigger {
	p := di.MustGet[*pipeline.Pipeline](container)
	config := di.MustGet[*services.Config](container)
	runs := di.MustGet[*services.RunService](container)

	return services.NewTrigger(p.DAG.ID, config.RunDefaults(),
		di.MustGet[*policy.Validator](container),
		di.MustGet[*orchestrator.Orchestrator](container),
		services.WithRunStore(runs),
		services.WithIntervalLock(di.MustGet[*lockdao.DAO](container)),
	)
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "scheduled-trigger").Logger()

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
		return NewHandler(di.MustGet[*pipeline.Pipeline](container).DAG, newTrigger(container)), nil
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		handler, err := newHandler()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		wrappedHandler := func(ctx context.Context, event events.CloudWatchEvent) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleScheduledEvent(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "scheduled-trigger",
		Usage: "Start the scheduled run for the latest complete interval",
		Flags: []cli.Flag{
			&cli.TimestampFlag{
				Name:   "at",
				Usage:  "Event time (RFC3339); defaults to now",
				Layout: time.RFC3339,
			},
		},
		Action: func(c *cli.Context) error {
			handler, err := newHandler()
			if err != nil {
				return err
			}

			event := events.CloudWatchEvent{ID: "cli", Source: "cli"}
			if at := c.Timestamp("at"); at != nil {
				event.Time = *at
			}
			return handler.HandleScheduledEvent(logger.WithContext(c.Context), event)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
