package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/constants"
	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/policy"
	"github.com/savaki/data-pipeline/internal/services"
)

// RunCommand returns the run command, which executes one run in-process and
// waits for it to finish
func RunCommand(logger *zerolog.Logger) *cli.Command {
	flags := append(confFlags(),
		logicalDateFlag(),
		&cli.BoolFlag{
			Name:  "ephemeral",
			Usage: "Do not record the run or its task instances in DynamoDB",
		},
		&cli.BoolFlag{
			Name:  "skip-retry-delay",
			Usage: "Retry failed tasks immediately instead of waiting the retry delay",
		},
		&cli.BoolFlag{
			Name:  "graph",
			Usage: "Print the DAG coloured by task state when the run finishes",
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Execute a manual run in this process",
		Flags: flags,
		Action: func(c *cli.Context) error {
			ctx := c.Context

			container, err := newContainer(c)
			if err != nil {
				return err
			}

			p := di.MustGet[*pipeline.Pipeline](container)
			config := di.MustGet[*services.Config](container)
			validator := di.MustGet[*policy.Validator](container)

			var opts []executor.Option
			if c.Bool("skip-retry-delay") {
				opts = append(opts, executor.WithSleep(func(context.Context, time.Duration) error { return nil }))
			}

			var store services.RunStore
			if !c.Bool("ephemeral") {
				runs := di.MustGet[*services.RunService](container)
				store = runs
				opts = append(opts, executor.WithRecorder(runs))
			}

			exec, err := executor.New(p.DAG, p.Operators, opts...)
			if err != nil {
				return err
			}

			trigger := services.NewTrigger(p.DAG.ID, config.RunDefaults(), validator, nil)
			run, err := trigger.Prepare(ctx, services.TriggerInput{
				RunType:     models.RunTypeManual,
				LogicalDate: logicalDateFromFlags(c),
				Conf:        confFromFlags(c),
			})
			if err != nil {
				return err
			}

			if store != nil {
				if err := store.CreateRun(ctx, run); err != nil {
					return err
				}
			}

			logger.Info().
				Str("run_id", run.RunID).
				Str("bucket_name", run.Conf.BucketName).
				Str("api_url", run.Conf.APIURL).
				Msg("Starting run")

			result, runErr := exec.Run(ctx, run)
			return reportRun(os.Stdout, p.DAG, result, runErr, c.Bool("graph"))
		},
	}
}

// reportRun prints the outcome of a run and returns runErr. The executor
// returns no Result when the run could not be planned.
func reportRun(w io.Writer, d *dag.DAG, result *executor.Result, runErr error, graph bool) error {
	if result == nil {
		return runErr
	}

	instances, err := instancesInOrder(d, result.Tasks)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s: %s\n", result.Run.RunID, result.Status)
	printInstances(w, instances)
	if uri := result.Results[constants.TaskUploadToS3]; len(uri) > 0 {
		fmt.Fprintf(w, "Uploaded: %s\n", uri)
	}
	fmt.Fprintln(w)

	if graph {
		if err := d.DOT(w, result.States()); err != nil {
			return err
		}
	}

	return runErr
}
