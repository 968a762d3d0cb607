package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/es-saga-course/internal/metrics"
)

const defaultCompensationTimeout = 30 * time.Second

// errStepOverran marks a step that reported success after its own deadline.
var errStepOverran = fmt.Errorf("step returned after its deadline: %w", context.DeadlineExceeded)

// Orchestrator executes steps sequentially on the calling goroutine. It never
// retries a step or a compensation.
type Orchestrator struct {
	store               LogStore
	log                 *slog.Logger
	metrics             *metrics.Metrics
	stepTimeout         time.Duration
	compensationTimeout time.Duration
	now                 func() time.Time
	newID               func() string
}

type Option func(*Orchestrator)

// WithStepTimeout bounds each Execute call. A step that runs out of time is
// treated as failed. One that ignores the deadline and returns success late is
// kept as succeeded and compensated along with the earlier steps.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

// WithCompensationTimeout bounds each Compensate call.
func WithCompensationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.compensationTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func NewOrchestrator(store LogStore, log *slog.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		store:               store,
		log:                 log.With(slog.String("component", "saga")),
		compensationTimeout: defaultCompensationTimeout,
		now:                 func() time.Time { return time.Now().UTC() },
		newID:               func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes steps in order. On the first failure it compensates the
// succeeded steps in reverse and returns *StepExecutionError, or
// *CompensationError if a compensation fails or the failing step reports an
// *UndoError. The returned log is the last
// state written to the store.
func (o *Orchestrator) Run(ctx context.Context, name string, steps []Step, initial map[string]any) (*Log, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if seen[s.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.Name())
		}
		seen[s.Name()] = true
	}

	sc := NewContext(initial)
	now := o.now()
	sagaLog := &Log{
		SagaID:    o.newID(),
		Name:      name,
		Status:    StatusStarted,
		Steps:     make([]StepRecord, len(steps)),
		Trail:     []StepRecord{},
		Context:   sc.Values(),
		StartedAt: now,
		UpdatedAt: now,
	}
	for i, s := range steps {
		sagaLog.Steps[i] = StepRecord{Name: s.Name(), Status: StepPending, Timestamp: now}
	}

	log := o.log.With(slog.String("saga", name), slog.String("saga_id", sagaLog.SagaID))

	if err := o.store.Save(ctx, sagaLog); err != nil {
		return nil, fmt.Errorf("failed to persist saga start: %w", err)
	}
	log.Info("saga started", slog.Int("steps", len(steps)))

	var persistErrs []error
	persist := func() {
		sagaLog.Context = sc.Values()
		if err := o.store.Save(context.WithoutCancel(ctx), sagaLog); err != nil {
			log.Error("failed to persist saga log", slog.String("status", string(sagaLog.Status)), slog.Any("error", err))
			persistErrs = append(persistErrs, err)
		}
	}

	for i, step := range steps {
		err := o.execute(ctx, name, step, sc)
		if err == nil {
			sagaLog.mark(i, StepSucceeded, o.now(), nil)
			persist()
			log.Debug("step succeeded", slog.String("step", step.Name()))
			continue
		}

		var (
			runErr error
			undo   *UndoError
		)
		switch {
		case errors.Is(err, errStepOverran):
			// Its side effects are in place, so it is compensated with the rest.
			log.Warn("step finished after its deadline, compensating", slog.String("step", step.Name()))
			sagaLog.mark(i, StepSucceeded, o.now(), nil)
			sagaLog.Status = StatusCompensating
			persist()
			cause := &StepExecutionError{SagaID: sagaLog.SagaID, Step: step.Name(), Err: err}
			runErr = o.compensate(ctx, log, sagaLog, steps[:i+1], sc, cause, persist)

		case errors.As(err, &undo):
			sagaLog.mark(i, StepFailed, o.now(), undo.Err)
			sagaLog.Status = StatusCompensating
			persist()
			sagaLog.mark(i, StepCompensationFailed, o.now(), undo.Undo)
			sagaLog.Status = StatusFailed
			log.Error("step could not undo its partial work, manual intervention required",
				slog.String("step", step.Name()),
				slog.Any("error", undo.Err),
				slog.Any("undo_error", undo.Undo),
			)
			cause := &StepExecutionError{SagaID: sagaLog.SagaID, Step: step.Name(), Err: undo.Err}
			runErr = &CompensationError{SagaID: sagaLog.SagaID, Step: step.Name(), Err: undo.Undo, Cause: cause}

		default:
			log.Warn("step failed, compensating", slog.String("step", step.Name()), slog.Any("error", err))
			sagaLog.mark(i, StepFailed, o.now(), err)
			sagaLog.Status = StatusCompensating
			persist()
			cause := &StepExecutionError{SagaID: sagaLog.SagaID, Step: step.Name(), Err: err}
			runErr = o.compensate(ctx, log, sagaLog, steps[:i], sc, cause, persist)
		}

		sagaLog.Error = runErr.Error()
		persist()
		o.metrics.SagaFinished(name, string(sagaLog.Status))
		if len(persistErrs) > 0 {
			return sagaLog.Clone(), errors.Join(append([]error{runErr}, persistErrs...)...)
		}
		return sagaLog.Clone(), runErr
	}

	sagaLog.Status = StatusCompleted
	sagaLog.UpdatedAt = o.now()
	persist()
	o.metrics.SagaFinished(name, string(sagaLog.Status))
	log.Info("saga completed")

	return sagaLog.Clone(), errors.Join(persistErrs...)
}

// compensate walks completed in reverse. It stops at the first failing
// compensation and leaves the saga FAILED.
func (o *Orchestrator) compensate(ctx context.Context, log *slog.Logger, sagaLog *Log, completed []Step, sc *Context, cause *StepExecutionError, persist func()) error {
	// Compensation must run even when the caller's context was cancelled.
	base := context.WithoutCancel(ctx)

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		err := o.runCompensation(base, step, sc)
		if err != nil {
			sagaLog.mark(i, StepCompensationFailed, o.now(), err)
			sagaLog.Status = StatusFailed
			log.Error("compensation failed, manual intervention required",
				slog.String("step", step.Name()),
				slog.Any("error", err),
			)
			return &CompensationError{SagaID: sagaLog.SagaID, Step: step.Name(), Err: err, Cause: cause}
		}
		sagaLog.mark(i, StepCompensated, o.now(), nil)
		persist()
	}

	sagaLog.Status = StatusCompensated
	log.Info("saga compensated", slog.String("failed_step", cause.Step))
	return cause
}

func (o *Orchestrator) execute(ctx context.Context, sagaName string, step Step, sc *Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	stepCtx, cancel := withOptionalTimeout(ctx, o.stepTimeout)
	defer cancel()

	start := time.Now()
	defer o.metrics.ObserveSagaStep(sagaName, step.Name(), start)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	if err := step.Execute(stepCtx, sc); err != nil {
		return err
	}
	if ctx.Err() == nil && stepCtx.Err() != nil {
		return errStepOverran
	}
	return nil
}

func (o *Orchestrator) runCompensation(ctx context.Context, step Step, sc *Context) (err error) {
	compCtx, cancel := withOptionalTimeout(ctx, o.compensationTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()

	return step.Compensate(compCtx, sc)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
