package executor

import (
	"github.com/savaki/data-pipeline/internal/dag"
	"github.com/savaki/data-pipeline/internal/models"
)

// Reconcile returns the task instances that must change once a run driven
// externally has failed, given their observed states. Tasks are visited in
// topological order:
//
//   - a non-terminal task with a failed upstream becomes UPSTREAM_FAILED
//   - a non-terminal task whose upstream tasks all succeeded was in flight when
//     the run failed (a timeout or crash never recorded its try), so it
//     becomes FAILED with errMsg
//
// The state machine only runs linear chains, so at most one task is in flight.
func Reconcile(d *dag.DAG, observed map[string]models.TaskInstance, errMsg string) ([]models.TaskInstance, error) {
	tasks, err := d.Tasks()
	if err != nil {
		return nil, err
	}

	states := make(map[string]models.TaskInstance, len(tasks))
	for id, ti := range observed {
		states[id] = ti
	}

	var marked []models.TaskInstance
	for _, task := range tasks {
		current, ok := states[task.ID]
		if ok && current.State.IsTerminal() {
			continue
		}

		upstream, err := d.Upstream(task.ID)
		if err != nil {
			return nil, err
		}

		ti := models.TaskInstance{
			TaskID:    task.ID,
			TryNumber: current.TryNumber,
			MaxTries:  task.MaxTries(),
		}
		switch upstreamState(states, upstream) {
		case models.TaskStateUpstreamFailed:
			ti.State = models.TaskStateUpstreamFailed
		case models.TaskStateSuccess:
			ti.State = models.TaskStateFailed
			ti.ErrorMsg = errMsg
			if ti.ErrorMsg == "" {
				ti.ErrorMsg = current.ErrorMsg
			}
		default:
			continue
		}

		states[task.ID] = ti
		marked = append(marked, ti)
	}

	return marked, nil
}
