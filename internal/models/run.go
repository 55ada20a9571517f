package models

import (
	"time"

	"github.com/savaki/data-pipeline/internal/constants"
)

// RunType distinguishes scheduler-created runs from manual triggers
type RunType string

const (
	RunTypeScheduled RunType = "scheduled"
	RunTypeManual    RunType = "manual"
)

// Payload is opaque task output passed by value between tasks
type Payload []byte

// RunConf holds the per-run parameters supplied at trigger time
type RunConf struct {
	BucketName string `json:"bucket_name" yaml:"bucket_name"`
	Region     string `json:"region,omitempty" yaml:"region,omitempty"`
	APIURL     string `json:"api_url" yaml:"api_url"`
}

// WithDefaults fills empty fields from defaults and the region from constants.DefaultRegion
func (c RunConf) WithDefaults(defaults RunConf) RunConf {
	if c.BucketName == "" {
		c.BucketName = defaults.BucketName
	}
	if c.APIURL == "" {
		c.APIURL = defaults.APIURL
	}
	if c.Region == "" {
		c.Region = defaults.Region
	}
	if c.Region == "" {
		c.Region = constants.DefaultRegion
	}
	return c
}

// Run identifies a single DAG run
type Run struct {
	DagID       string    `json:"dag_id"`
	RunID       string    `json:"run_id"` // KSUID - DynamoDB sort key
	RunType     RunType   `json:"run_type"`
	LogicalDate time.Time `json:"logical_date"`
	Conf        RunConf   `json:"conf"`
}

// TaskResult is the XCom value a task leaves for its downstream tasks
type TaskResult struct {
	Payload Payload `json:"payload"`
}

// StepFunctionInput is the state document threaded through a Step Functions execution
type StepFunctionInput struct {
	Run     Run                   `json:"run"`
	Results map[string]TaskResult `json:"results"`
}

// TaskInput is what the run-task Lambda receives for a single task state
type TaskInput struct {
	TaskID     string                `json:"task_id"`
	Run        Run                   `json:"run"`
	Results    map[string]TaskResult `json:"results,omitempty"`
	RetryCount int                   `json:"retry_count,omitempty"`
}

// RunStatusInput is what the update-run-status Lambda receives when an
// execution reaches a terminal state
type RunStatusInput struct {
	Run    Run       `json:"run"`
	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}
