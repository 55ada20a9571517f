package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/dao/lockdao"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/orchestrator"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/policy"
	"github.com/savaki/data-pipeline/internal/services"
)

// TriggerCommand returns the trigger command, which starts a run on the
// deployed Step Functions state machine and returns without waiting
func TriggerCommand(logger *zerolog.Logger) *cli.Command {
	flags := append(confFlags(),
		logicalDateFlag(),
		&cli.BoolFlag{
			Name:  "scheduled",
			Usage: "Mark the run as scheduled instead of manual",
		},
	)

	return &cli.Command{
		Name:  "trigger",
		Usage: "Start a run on AWS Step Functions",
		Flags: flags,
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}

			p := di.MustGet[*pipeline.Pipeline](container)
			config := di.MustGet[*services.Config](container)

			trigger := services.NewTrigger(p.DAG.ID, config.RunDefaults(),
				di.MustGet[*policy.Validator](container),
				di.MustGet[*orchestrator.Orchestrator](container),
				services.WithRunStore(di.MustGet[*services.RunService](container)),
				services.WithIntervalLock(di.MustGet[*lockdao.DAO](container)),
			)

			runType := models.RunTypeManual
			if c.Bool("scheduled") {
				runType = models.RunTypeScheduled
			}

			run, err := trigger.Trigger(c.Context, services.TriggerInput{
				RunType:     runType,
				LogicalDate: logicalDateFromFlags(c),
				Conf:        confFromFlags(c),
			})
			if err != nil {
				return err
			}

			logger.Info().
				Str("run_id", run.RunID).
				Str("execution_name", orchestrator.ExecutionName(run)).
				Msg("Triggered run")

			fmt.Println(run.RunID)
			return nil
		},
	}
}
