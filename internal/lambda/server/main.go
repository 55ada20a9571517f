package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/graph-gophers/graphql-go"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/server"
)

func setupContainer(env string) (di.Container, error) {
	return di.New(env,
		di.WithProviders(
			di.ProvideGraphQL,
		),
	)
}

func newHTTPHandler(container di.Container, logger zerolog.Logger, env string) http.Handler {
	schema := di.MustGet[*graphql.Schema](container)
	return server.NewHandler(schema).Router(logger, env)
}

// serveAction starts a local HTTP server for testing
func serveAction(c *cli.Context) error {
	addr := fmt.Sprintf(":%s", c.String("port"))
	env := c.String("env")

	container, err := setupContainer(env)
	if err != nil {
		return fmt.Errorf("failed to setup DI container: %w", err)
	}

	logger := di.MustGet[zerolog.Logger](container)
	logger.Info().
		Str("addr", addr).
		Str("env", env).
		Msg("Starting HTTP server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           newHTTPHandler(container, logger, ""),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "server").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = os.Getenv("ENVIRONMENT")
		}
		if env == "" {
			logger.Error().Msg("ENV or ENVIRONMENT variable is required")
			os.Exit(1)
		}

		logger.Info().
			Str("env", env).
			Msg("Initializing Lambda handler")

		container, err := setupContainer(env)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to setup DI container")
			os.Exit(1)
		}

		// API Gateway stages are named after the env
		httpHandler := newHTTPHandler(container, logger, env)
		lambda.Start(httpadapter.NewV2(httpHandler).ProxyWithContext)
		return
	}

	app := &cli.App{
		Name:  "server",
		Usage: "GraphQL API for the data pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
				Value:   "dev",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start local HTTP server for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "Port to listen on",
						Value: "8080",
					},
				},
				Action: serveAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
