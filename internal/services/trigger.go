package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/savaki/data-pipeline/internal/dao/lockdao"
	"github.com/savaki/data-pipeline/internal/errors"
	"github.com/savaki/data-pipeline/internal/models"
	"github.com/savaki/data-pipeline/internal/policy"
)

// RunStore persists the runs a Trigger creates
type RunStore interface {
	CreateRun(ctx context.Context, run models.Run) error
	RunFinished(ctx context.Context, run models.Run, status models.RunStatus, errMsg string) error
}

// Dispatcher hands a created run to whatever executes it
type Dispatcher interface {
	Dispatch(ctx context.Context, run models.Run) error
}

// RunConfValidator admits or rejects run parameters
type RunConfValidator interface {
	ValidateRunConf(ctx context.Context, conf models.RunConf) (*policy.ValidationResult, error)
}

// IntervalLock allows one scheduled run per logical date
type IntervalLock interface {
	Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	Release(ctx context.Context, input lockdao.ReleaseInput) error
}

// TriggerInput describes a run to create
type TriggerInput struct {
	RunType     models.RunType
	LogicalDate time.Time
	Conf        models.RunConf
}

// Trigger validates run parameters, records the run and dispatches it
type Trigger struct {
	dagID      string
	defaults   models.RunConf
	validator  RunConfValidator
	store      RunStore
	lock       IntervalLock
	dispatcher Dispatcher
	newID      func() string
	now        func() time.Time
}

type TriggerOption func(*Trigger)

// WithRunStore records runs in store. Without one, runs are not persisted.
func WithRunStore(store RunStore) TriggerOption {
	return func(t *Trigger) {
		t.store = store
	}
}

// WithIntervalLock rejects a scheduled run whose logical date already has one
// with errors.ErrAlreadyScheduled
func WithIntervalLock(lock IntervalLock) TriggerOption {
	return func(t *Trigger) {
		t.lock = lock
	}
}

// WithIDFunc replaces KSUID run ids, for tests
func WithIDFunc(fn func() string) TriggerOption {
	return func(t *Trigger) {
		t.newID = fn
	}
}

// WithNowFunc replaces the wall clock used for manual logical dates, for tests
func WithNowFunc(fn func() time.Time) TriggerOption {
	return func(t *Trigger) {
		t.now = fn
	}
}

func NewTrigger(dagID string, defaults models.RunConf, validator RunConfValidator, dispatcher Dispatcher, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		dagID:      dagID,
		defaults:   defaults,
		validator:  validator,
		dispatcher: dispatcher,
		newID:      func() string { return ksuid.New().String() },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Prepare fills defaults, validates the conf and assigns a run id. Nothing is
// recorded or dispatched.
func (t *Trigger) Prepare(ctx context.Context, input TriggerInput) (models.Run, error) {
	conf := input.Conf.WithDefaults(t.defaults)

	result, err := t.validator.ValidateRunConf(ctx, conf)
	if err != nil {
		return models.Run{}, err
	}
	if !result.Allowed {
		return models.Run{}, fmt.Errorf("%w: %s", errors.ErrRunConfRejected, strings.Join(result.Violations, "; "))
	}

	runType := input.RunType
	if runType == "" {
		runType = models.RunTypeManual
	}

	logicalDate := input.LogicalDate
	if logicalDate.IsZero() {
		logicalDate = t.now()
	}

	return models.Run{
		DagID:       t.dagID,
		RunID:       t.newID(),
		RunType:     runType,
		LogicalDate: logicalDate.UTC().Truncate(time.Second),
		Conf:        conf,
	}, nil
}

// Trigger creates and dispatches a run. A run that cannot be dispatched is
// recorded as FAILED.
func (t *Trigger) Trigger(ctx context.Context, input TriggerInput) (models.Run, error) {
	run, err := t.Prepare(ctx, input)
	if err != nil {
		return models.Run{}, err
	}

	logger := zerolog.Ctx(ctx).With().
		Str("dag_id", run.DagID).
		Str("run_id", run.RunID).
		Str("run_type", string(run.RunType)).
		Logger()
	ctx = logger.WithContext(ctx)

	locked := t.lock != nil && run.RunType == models.RunTypeScheduled
	release := func() {
		if !locked {
			return
		}
		input := lockdao.ReleaseInput{ID: lockdao.NewID(run.DagID, run.LogicalDate), RunID: run.RunID}
		if err := t.lock.Release(ctx, input); err != nil {
			logger.Error().Err(err).Msg("Failed to release interval lock")
		}
	}
	if locked {
		holder, acquired, err := t.lock.Acquire(ctx, lockdao.AcquireInput{
			DagID:       run.DagID,
			LogicalDate: run.LogicalDate,
			RunID:       run.RunID,
		})
		if err != nil {
			return models.Run{}, err
		}
		if !acquired {
			return models.Run{}, fmt.Errorf("%w: %s held by run %s", errors.ErrAlreadyScheduled, lockdao.NewSK(run.LogicalDate), holder.RunID)
		}
	}

	if t.store != nil {
		if err := t.store.CreateRun(ctx, run); err != nil {
			release()
			return models.Run{}, fmt.Errorf("failed to create run: %w", err)
		}
	}

	logger.Info().
		Str("bucket", run.Conf.BucketName).
		Str("region", run.Conf.Region).
		Time("logical_date", run.LogicalDate).
		Msg("Triggered run")

	if err := t.dispatcher.Dispatch(ctx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to dispatch run")
		release()
		if t.store != nil {
			if recordErr := t.store.RunFinished(ctx, run, models.RunStatusFailed, err.Error()); recordErr != nil {
				logger.Error().Err(recordErr).Msg("Failed to record dispatch failure")
			}
		}
		return run, fmt.Errorf("failed to dispatch run: %w", err)
	}

	return run, nil
}
