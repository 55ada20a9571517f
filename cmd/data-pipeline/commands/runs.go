package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/services"
)

// RunsCommand returns the runs command for inspecting run history
func RunsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect recorded runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print records as JSON",
					},
				},
				Action: func(c *cli.Context) error {
					container, err := newContainer(c)
					if err != nil {
						return err
					}

					p := di.MustGet[*pipeline.Pipeline](container)
					runs := di.MustGet[*services.RunService](container)

					records, err := runs.ListRuns(c.Context, p.DAG.ID, c.Int("limit"))
					if err != nil {
						return err
					}

					if c.Bool("json") {
						return printJSON(records)
					}

					if len(records) == 0 {
						fmt.Printf("No runs recorded for %s\n", p.DAG.ID)
						return nil
					}

					for _, record := range records {
						fmt.Printf("%-28s %-10s %-9s %s\n",
							record.SK,
							record.Status,
							record.RunType,
							time.Unix(record.LogicalDate, 0).UTC().Format(time.RFC3339),
						)
					}
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show a run and its task instances",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "run-id",
						Usage:    "Run id (KSUID)",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					container, err := newContainer(c)
					if err != nil {
						return err
					}

					p := di.MustGet[*pipeline.Pipeline](container)
					runs := di.MustGet[*services.RunService](container)

					runID := c.String("run-id")
					record, err := runs.GetRun(c.Context, string(rundao.NewID(rundao.NewPK(p.DAG.ID), runID)))
					if err != nil {
						return err
					}

					observed, err := runs.TaskInstances(c.Context, p.DAG.ID, runID)
					if err != nil {
						return err
					}
					instances, err := instancesInOrder(p.DAG, observed)
					if err != nil {
						return err
					}

					run := record.Run()
					fmt.Printf("Run %s: %s\n", run.RunID, record.Status)
					fmt.Printf("  Type:         %s\n", run.RunType)
					fmt.Printf("  Logical date: %s\n", run.LogicalDate.Format(time.RFC3339))
					fmt.Printf("  Bucket:       %s (%s)\n", run.Conf.BucketName, run.Conf.Region)
					fmt.Printf("  API URL:      %s\n", run.Conf.APIURL)
					if record.ExecutionArn != nil {
						fmt.Printf("  Execution:    %s\n", *record.ExecutionArn)
					}
					if record.ErrorMsg != nil {
						fmt.Printf("  Error:        %s\n", *record.ErrorMsg)
					}
					fmt.Println()
					printInstances(os.Stdout, instances)

					logger.Debug().Str("run_id", runID).Int("tasks", len(instances)).Msg("Shown run")
					return nil
				},
			},
		},
	}
}
