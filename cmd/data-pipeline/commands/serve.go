package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/graph-gophers/graphql-go"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/executor"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/pipeline"
	"github.com/savaki/data-pipeline/internal/scheduler"
	"github.com/savaki/data-pipeline/internal/server"
	"github.com/savaki/data-pipeline/internal/services"
)

// ServeCommand returns the serve command, which runs the interval scheduler
// and the GraphQL API until interrupted
func ServeCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Schedule runs every interval and serve the GraphQL API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Address the API listens on",
				Value: ":8080",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without scheduling runs",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := newContainer(c, di.ProvideGraphQL)
			if err != nil {
				return err
			}

			p := di.MustGet[*pipeline.Pipeline](container)
			trigger := di.MustGet[*services.Trigger](container)
			local := di.MustGet[*executor.Dispatcher](container)
			defer local.Shutdown()

			srv := &http.Server{
				Addr:              c.String("addr"),
				Handler:           server.NewHandler(di.MustGet[*graphql.Schema](container)).Router(*logger, ""),
				ReadHeaderTimeout: 10 * time.Second,
			}

			group, ctx := errgroup.WithContext(ctx)

			group.Go(func() error {
				logger.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			})

			group.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if !c.Bool("no-scheduler") {
				dispatch := func(ctx context.Context, logicalDate time.Time) error {
					_, err := trigger.Trigger(ctx, services.TriggerInput{
						RunType:     models.RunTypeScheduled,
						LogicalDate: logicalDate,
					})
					return err
				}

				sched, err := scheduler.New(p.DAG.DefaultArgs.StartDate, p.DAG.Schedule, dispatch)
				if err != nil {
					return err
				}

				group.Go(func() error {
					logger.Info().
						Str("dag_id", p.DAG.ID).
						Dur("interval", p.DAG.Schedule).
						Msg("Starting scheduler")
					if err := sched.Run(logger.WithContext(ctx)); !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}

			return group.Wait()
		},
	}
}
