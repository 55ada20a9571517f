package dag_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/data-pipeline/internal/dag"
)

func newTestDAG(t *testing.T, ids ...string) *dag.DAG {
	t.Helper()

	d := dag.New("test_dag",
		dag.WithSchedule(time.Minute),
		dag.WithDefaultArgs(dag.DefaultArgs{Retries: 2, RetryDelay: time.Second}),
	)
	for _, id := range ids {
		_, err := d.AddTask(id)
		require.NoError(t, err)
	}
	return d
}

func TestAddTaskAppliesDefaults(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t)
	task, err := d.AddTask("a")
	require.NoError(t, err)
	assert.Equal(t, 2, task.Retries)
	assert.Equal(t, time.Second, task.RetryDelay)
	assert.Equal(t, 3, task.MaxTries())

	task, err = d.AddTask("b", dag.WithRetries(0), dag.WithRetryDelay(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, task.Retries)
	assert.Equal(t, time.Minute, task.RetryDelay)
}

func TestAddTaskRejectsInvalidRetries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		opts    []dag.TaskOption
		wantErr error
	}{
		{name: "too many retries", id: "a", opts: []dag.TaskOption{dag.WithRetries(dag.MaxRetries + 1)}, wantErr: dag.ErrTooManyRetries},
		{name: "negative retries", id: "a", opts: []dag.TaskOption{dag.WithRetries(-1)}, wantErr: dag.ErrNegativeRetries},
		{name: "negative delay", id: "a", opts: []dag.TaskOption{dag.WithRetryDelay(-time.Second)}, wantErr: dag.ErrNegativeDelay},
		{name: "empty id", id: "", wantErr: dag.ErrTaskIDRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDAG(t)
			_, err := d.AddTask(tt.id, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAddTaskDuplicate(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t, "a")
	_, err := d.AddTask("a")
	assert.ErrorIs(t, err, dag.ErrDuplicateTask)
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	// ids deliberately out of lexical order so the sort has to follow the edges
	d := newTestDAG(t, "zeta", "alpha", "mu", "beta")
	require.NoError(t, d.Chain("zeta", "alpha", "mu", "beta"))

	order, err := d.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mu", "beta"}, order)

	upstream, err := d.Upstream("mu")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, upstream)

	downstream, err := d.Downstream("mu")
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, downstream)

	upstream, err = d.Upstream("zeta")
	require.NoError(t, err)
	assert.Empty(t, upstream)

	edges, err := d.Edges()
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"zeta", "alpha"}, {"alpha", "mu"}, {"mu", "beta"}}, edges)
}

func TestSetDownstreamRejectsCycle(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t, "a", "b", "c")
	require.NoError(t, d.Chain("a", "b", "c"))

	err := d.SetDownstream("c", "a")
	assert.ErrorIs(t, err, dag.ErrCycle)

	order, err := d.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSetDownstreamUnknownTask(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t, "a")
	assert.ErrorIs(t, d.SetDownstream("a", "missing"), dag.ErrTaskNotFound)
	assert.ErrorIs(t, d.Chain("a"), dag.ErrChainTooShort)
}

func TestSetDownstreamIsIdempotent(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t, "a", "b")
	require.NoError(t, d.SetDownstream("a", "b"))
	require.NoError(t, d.SetDownstream("a", "b"))

	edges, err := d.Edges()
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t, "a")
	assert.NoError(t, d.Validate())

	unscheduled := dag.New("no_schedule")
	assert.ErrorIs(t, unscheduled.Validate(), dag.ErrScheduleRequired)
}

func TestDOT(t *testing.T) {
	t.Parallel()

	d := newTestDAG(t, "a", "b")
	require.NoError(t, d.Chain("a", "b"))

	var buf bytes.Buffer
	require.NoError(t, d.DOT(&buf, nil))
	out := buf.String()
	assert.Contains(t, out, `"a"`)
	assert.Contains(t, out, `"b"`)
	assert.Contains(t, out, "->")
	assert.NotContains(t, out, "fillcolor")

	buf.Reset()
	require.NoError(t, d.DOT(&buf, map[string]string{"a": "SUCCESS", "b": "FAILED"}))
	out = buf.String()
	assert.Contains(t, out, "fillcolor")
	assert.Contains(t, out, "#008000")
	assert.Contains(t, out, "#ff0000")
}

func TestStateColor(t *testing.T) {
	t.Parallel()

	color, err := dag.StateColor("SUCCESS")
	require.NoError(t, err)
	assert.Equal(t, "#008000", color)

	color, err = dag.StateColor("whatever")
	require.NoError(t, err)
	assert.Equal(t, "#ffffff", color)
}
