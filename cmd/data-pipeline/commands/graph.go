package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/services"
)

// GraphCommand returns the graph command, which renders the DAG in Graphviz
// DOT, optionally coloured by the task states of a run
func GraphCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Render the DAG as Graphviz DOT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Colour each task by its state in this run",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to this file instead of stdout",
			},
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}

			p := di.MustGet[*pipeline.Pipeline](container)

			var states map[string]string
			if runID := c.String("run-id"); runID != "" {
				runs := di.MustGet[*services.RunService](container)
				if _, err := runs.GetRun(c.Context, string(rundao.NewID(rundao.NewPK(p.DAG.ID), runID))); err != nil {
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
				states = statesOf(instances)
			}

			var w io.Writer = os.Stdout
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				w = f
				logger.Info().Str("output", path).Msg("Writing graph")
			}

			return p.DAG.DOT(w, states)
		},
	}
}
