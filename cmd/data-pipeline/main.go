package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/cmd/data-pipeline/commands"
	"github.com/savaki/data-pipeline/internal/di"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "data-pipeline",
		Usage: "Run, schedule and deploy the complex_data_pipeline workflow",
		Description: `A CLI for the complex_data_pipeline DAG:

  create_bucket >> ingest_data_from_api >> process_data >> upload_to_s3

Runs execute in-process or on AWS Step Functions depending on the configured executor.`,
		Flags: commands.GlobalFlags(),
		Commands: []*cli.Command{
			commands.RunCommand(&logger),
			commands.TriggerCommand(&logger),
			commands.ServeCommand(&logger),
			commands.GraphCommand(&logger),
			commands.RunsCommand(&logger),
			commands.DeployCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
