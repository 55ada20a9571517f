package executor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/savaki/data-pipeline/internal/models"
)

// Dispatcher hands triggered runs to an in-process Executor
type Dispatcher struct {
	executor *Executor
	async    bool
	base     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDispatcher returns a Dispatcher. When async is set, Dispatch returns as
// soon as the run has been started in the background.
func NewDispatcher(executor *Executor, async bool) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		executor: executor,
		async:    async,
		base:     base,
		cancel:   cancel,
	}
}

// Dispatch runs the DAG for run. Task failures are recorded by the executor's
// Recorder and are not returned. Background runs outlive ctx; they end early
// only when the dispatcher is shut down.
func (d *Dispatcher) Dispatch(ctx context.Context, run models.Run) error {
	if !d.async {
		d.execute(ctx, run)
		return nil
	}

	runCtx := zerolog.Ctx(ctx).WithContext(d.base)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(runCtx, run)
	}()
	return nil
}

// Wait blocks until every background run has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown cancels background runs, interrupting any retry delay, and waits
// for them to record their outcome
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) execute(ctx context.Context, run models.Run) {
	if _, err := d.executor.Run(ctx, run); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("run_id", run.RunID).
			Msg("Run failed")
	}
}
