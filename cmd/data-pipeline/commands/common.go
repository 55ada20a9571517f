package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/di"
	"github.com/savaki/data-pipeline/internal/models"
)

// GlobalFlags are accepted by every command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env",
			Usage:   "Environment name; selects DynamoDB tables and SSM parameters",
			EnvVars: []string{"ENV", "ENVIRONMENT"},
			Value:   "dev",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML config file used instead of SSM Parameter Store",
			EnvVars: []string{"CONFIG_FILE"},
		},
	}
}

func newContainer(c *cli.Context, providers ...any) (di.Container, error) {
	opts := []di.Option{di.WithProviders(providers...)}
	if path := c.String("config"); path != "" {
		opts = append(opts, di.WithConfigFile(path))
	}

	container, err := di.New(c.String("env"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to setup DI container: %w", err)
	}
	return container, nil
}

func confFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "bucket-name",
			Usage: "Bucket to create and upload to (defaults to configuration)",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "Bucket region (defaults to configuration, then us-west-2)",
		},
		&cli.StringFlag{
			Name:  "api-url",
			Usage: "URL of the source API (defaults to configuration)",
		},
	}
}

func confFromFlags(c *cli.Context) models.RunConf {
	return models.RunConf{
		BucketName: c.String("bucket-name"),
		Region:     c.String("region"),
		APIURL:     c.String("api-url"),
	}
}

func logicalDateFlag() cli.Flag {
	return &cli.TimestampFlag{
		Name:   "logical-date",
		Usage:  "Logical date of the run (RFC3339); defaults to now",
		Layout: time.RFC3339,
	}
}

func logicalDateFromFlags(c *cli.Context) time.Time {
	if t := c.Timestamp("logical-date"); t != nil {
		return t.UTC()
	}
	return time.Time{}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// instancesInOrder lists one instance per task in topological order. Tasks
// missing from observed are PENDING.
func instancesInOrder(d *dag.DAG, observed map[string]models.TaskInstance) ([]models.TaskInstance, error) {
	tasks, err := d.Tasks()
	if err != nil {
		return nil, err
	}

	instances := make([]models.TaskInstance, 0, len(tasks))
	for _, task := range tasks {
		ti, ok := observed[task.ID]
		if !ok {
			ti = models.TaskInstance{TaskID: task.ID, State: models.TaskStatePending, MaxTries: task.MaxTries()}
		}
		instances = append(instances, ti)
	}
	return instances, nil
}

func printInstances(w io.Writer, instances []models.TaskInstance) {
	for _, ti := range instances {
		line := fmt.Sprintf("  %-22s %-16s try %d/%d", ti.TaskID, ti.State, ti.TryNumber, ti.MaxTries)
		if ti.ErrorMsg != "" {
			line += "  " + ti.ErrorMsg
		}
		fmt.Fprintln(w, line)
	}
}

func statesOf(instances []models.TaskInstance) map[string]string {
	states := make(map[string]string, len(instances))
	for _, ti := range instances {
		states[ti.TaskID] = string(ti.State)
	}
	return states
}
