// Package dag declares workflow graphs: tasks, their retry policy and the
// dependencies between them. A DAG is pure data; executors walk it in
// topological order and compilers turn it into other representations.
package dag

import (
	"sort"
	"strings"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// MaxRetries is the upper bound on retries for any task.
const MaxRetries = 3

var (
	ErrTooManyRetries   = errors.Errorf("retries must not exceed %d", MaxRetries)
	ErrNegativeRetries  = errors.New("retries must not be negative")
	ErrNegativeDelay    = errors.New("retry delay must not be negative")
	ErrTaskIDRequired   = errors.New("task id must be set")
	ErrDuplicateTask    = errors.New("task already exists")
	ErrTaskNotFound     = errors.New("task not found")
	ErrCycle            = errors.New("dependency would create a cycle")
	ErrChainTooShort    = errors.New("chain needs at least two tasks")
	ErrScheduleRequired = errors.New("schedule must be greater than 0")
)

// DefaultArgs are applied to every task added to a DAG unless overridden.
type DefaultArgs struct {
	Owner          string        `json:"owner" yaml:"owner"`
	DependsOnPast  bool          `json:"depends_on_past" yaml:"depends_on_past"`
	StartDate      time.Time     `json:"start_date" yaml:"start_date"`
	EmailOnFailure bool          `json:"email_on_failure" yaml:"email_on_failure"`
	EmailOnRetry   bool          `json:"email_on_retry" yaml:"email_on_retry"`
	Retries        int           `json:"retries" yaml:"retries"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// Task is a scheduled unit of work in the graph.
type Task struct {
	ID          string
	Description string
	Owner       string
	Retries     int
	RetryDelay  time.Duration
}

// MaxTries is the number of attempts the task gets: the first try plus retries.
func (t Task) MaxTries() int {
	return t.Retries + 1
}

// TaskOption overrides a default for a single task.
type TaskOption func(*Task)

func WithTaskDescription(description string) TaskOption {
	return func(t *Task) {
		t.Description = description
	}
}

func WithRetries(retries int) TaskOption {
	return func(t *Task) {
		t.Retries = retries
	}
}

func WithRetryDelay(delay time.Duration) TaskOption {
	return func(t *Task) {
		t.RetryDelay = delay
	}
}

// DAG is a directed acyclic graph of tasks.
type DAG struct {
	ID          string
	Description string
	Schedule    time.Duration
	DefaultArgs DefaultArgs

	graph graph.Graph[string, Task]
}

// Option configures a DAG.
type Option func(*DAG)

func WithDescription(description string) Option {
	return func(d *DAG) {
		d.Description = description
	}
}

func WithSchedule(interval time.Duration) Option {
	return func(d *DAG) {
		d.Schedule = interval
	}
}

func WithDefaultArgs(args DefaultArgs) Option {
	return func(d *DAG) {
		d.DefaultArgs = args
	}
}

func taskHash(t Task) string {
	return t.ID
}

// New creates an empty DAG. Edges that would introduce a cycle are rejected.
func New(id string, opts ...Option) *DAG {
	d := &DAG{
		ID:    id,
		graph: graph.New(taskHash, graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddTask registers a task built from the DAG's default args and the given overrides.
func (d *DAG) AddTask(id string, opts ...TaskOption) (Task, error) {
	if id == "" {
		return Task{}, ErrTaskIDRequired
	}

	task := Task{
		ID:         id,
		Owner:      d.DefaultArgs.Owner,
		Retries:    d.DefaultArgs.Retries,
		RetryDelay: d.DefaultArgs.RetryDelay,
	}
	for _, opt := range opts {
		opt(&task)
	}

	switch {
	case task.Retries > MaxRetries:
		return Task{}, errors.Wrapf(ErrTooManyRetries, "task %s has %d", id, task.Retries)
	case task.Retries < 0:
		return Task{}, errors.Wrapf(ErrNegativeRetries, "task %s", id)
	case task.RetryDelay < 0:
		return Task{}, errors.Wrapf(ErrNegativeDelay, "task %s", id)
	}

	if err := d.graph.AddVertex(task); err != nil {
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return Task{}, errors.Wrapf(ErrDuplicateTask, "task %s", id)
		}
		return Task{}, errors.Wrapf(err, "unable to add task %s", id)
	}

	return task, nil
}

// SetDownstream declares that downstream runs after upstream completes.
func (d *DAG) SetDownstream(upstream, downstream string) error {
	for _, id := range []string{upstream, downstream} {
		if _, err := d.graph.Vertex(id); err != nil {
			return errors.Wrapf(ErrTaskNotFound, "task %s", id)
		}
	}

	err := d.graph.AddEdge(upstream, downstream)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return errors.Wrapf(ErrCycle, "%s >> %s", upstream, downstream)
	default:
		return errors.Wrapf(err, "unable to add dependency %s >> %s", upstream, downstream)
	}
}

// Chain links the tasks into a linear sequence: ids[0] >> ids[1] >> ...
func (d *DAG) Chain(ids ...string) error {
	if len(ids) < 2 {
		return ErrChainTooShort
	}
	for i := 1; i < len(ids); i++ {
		if err := d.SetDownstream(ids[i-1], ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// Task returns the task registered under id.
func (d *DAG) Task(id string) (Task, error) {
	task, err := d.graph.Vertex(id)
	if err != nil {
		return Task{}, errors.Wrapf(ErrTaskNotFound, "task %s", id)
	}
	return task, nil
}

// Order returns task ids in a stable topological order.
func (d *DAG) Order() ([]string, error) {
	ids, err := graph.StableTopologicalSort(d.graph, func(a, b string) bool {
		return strings.Compare(a, b) < 0
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort tasks")
	}
	return ids, nil
}

// Tasks returns every task in topological order.
func (d *DAG) Tasks() ([]Task, error) {
	ids, err := d.Order()
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		task, err := d.Task(id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Upstream returns the ids of the tasks id directly depends on, sorted.
func (d *DAG) Upstream(id string) ([]string, error) {
	if _, err := d.Task(id); err != nil {
		return nil, err
	}

	predecessors, err := d.graph.PredecessorMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read predecessors")
	}
	return sortedKeys(predecessors[id]), nil
}

// Downstream returns the ids of the tasks that directly depend on id, sorted.
func (d *DAG) Downstream(id string) ([]string, error) {
	if _, err := d.Task(id); err != nil {
		return nil, err
	}

	adjacency, err := d.graph.AdjacencyMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read adjacency")
	}
	return sortedKeys(adjacency[id]), nil
}

// Edges returns every dependency as an (upstream, downstream) pair, ordered by upstream
// position in the topological order.
func (d *DAG) Edges() ([][2]string, error) {
	ids, err := d.Order()
	if err != nil {
		return nil, err
	}

	var edges [][2]string
	for _, id := range ids {
		downstream, err := d.Downstream(id)
		if err != nil {
			return nil, err
		}
		for _, next := range downstream {
			edges = append(edges, [2]string{id, next})
		}
	}
	return edges, nil
}

// Validate checks the DAG can be scheduled.
func (d *DAG) Validate() error {
	if d.Schedule <= 0 {
		return ErrScheduleRequired
	}
	tasks, err := d.Tasks()
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Retries > MaxRetries {
			return errors.Wrapf(ErrTooManyRetries, "task %s has %d", task.ID, task.Retries)
		}
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
