// Package saga runs ordered multi-step workflows and, when a step fails,
// compensates the steps that already succeeded in reverse order. Every run is
// recorded in a Log persisted through a LogStore.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a saga run.
//
//	STARTED -> COMPLETED
//	STARTED -> COMPENSATING -> COMPENSATED | FAILED
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusFailed       Status = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

type StepStatus string

const (
	StepPending            StepStatus = "PENDING"
	StepSucceeded          StepStatus = "SUCCEEDED"
	StepFailed             StepStatus = "FAILED"
	StepCompensated        StepStatus = "COMPENSATED"
	StepCompensationFailed StepStatus = "COMPENSATION_FAILED"
)

var (
	ErrNoSteps       = errors.New("saga has no steps")
	ErrDuplicateStep = errors.New("duplicate step name")
	ErrLogNotFound   = errors.New("saga log not found")
	// ErrLogTerminal is returned by a LogStore asked to overwrite a finished log.
	ErrLogTerminal = errors.New("saga log is terminal")
)

// Step is one unit of a saga. Execute must leave no partial side effect behind
// when it fails, and returns *UndoError when it cannot; Compensate undoes a
// successful Execute using data it put in the Context.
type Step interface {
	Name() string
	Execute(ctx context.Context, sc *Context) error
	Compensate(ctx context.Context, sc *Context) error
}

type funcStep struct {
	name       string
	execute    func(ctx context.Context, sc *Context) error
	compensate func(ctx context.Context, sc *Context) error
}

// NewStep builds a Step from functions. A nil compensate is a no-op.
func NewStep(name string, execute, compensate func(ctx context.Context, sc *Context) error) Step {
	return &funcStep{name: name, execute: execute, compensate: compensate}
}

func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Execute(ctx context.Context, sc *Context) error {
	return s.execute(ctx, sc)
}

func (s *funcStep) Compensate(ctx context.Context, sc *Context) error {
	if s.compensate == nil {
		return nil
	}
	return s.compensate(ctx, sc)
}

// StepRecord is the audit entry of one step.
type StepRecord struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Error     string     `json:"error,omitempty"`
}

// Log is the persisted record of one saga run. Steps holds one entry per
// declared step, pre-listed as PENDING; Trail is the append-only sequence of
// every step transition.
type Log struct {
	SagaID    string         `json:"saga_id"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Steps     []StepRecord   `json:"steps"`
	Trail     []StepRecord   `json:"trail"`
	Context   map[string]any `json:"context"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Step returns the record for the named step.
func (l *Log) Step(name string) (StepRecord, bool) {
	for _, s := range l.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (l *Log) Clone() *Log {
	c := *l
	c.Steps = append([]StepRecord(nil), l.Steps...)
	c.Trail = append([]StepRecord(nil), l.Trail...)
	c.Context = make(map[string]any, len(l.Context))
	for k, v := range l.Context {
		c.Context[k] = v
	}
	return &c
}

func (l *Log) mark(i int, status StepStatus, at time.Time, err error) {
	rec := StepRecord{Name: l.Steps[i].Name, Status: status, Timestamp: at}
	if err != nil {
		rec.Error = err.Error()
	}
	l.Steps[i] = rec
	l.Trail = append(l.Trail, rec)
	l.UpdatedAt = at
}

// StepExecutionError reports the step whose Execute failed. The saga compensated
// every earlier step successfully.
type StepExecutionError struct {
	SagaID string
	Step   string
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("saga %s: step %q failed: %v", e.SagaID, e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// CompensationError reports a compensation that failed. The saga is FAILED and
// needs manual remediation; Cause is the step failure that started compensation.
type CompensationError struct {
	SagaID string
	Step   string
	Err    error
	Cause  *StepExecutionError
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga %s: compensation of step %q failed: %v (after %v)", e.SagaID, e.Step, e.Err, e.Cause.Err)
}

func (e *CompensationError) Unwrap() []error {
	return []error{e.Err, e.Cause}
}

// UndoError is returned by a Step whose Execute failed and then could not roll
// back its own partial work. The orchestrator treats it as a failed
// compensation: the saga ends FAILED and nothing earlier is compensated.
type UndoError struct {
	Err  error
	Undo error
}

func (e *UndoError) Error() string {
	return fmt.Sprintf("%v (undo failed: %v)", e.Err, e.Undo)
}

func (e *UndoError) Unwrap() []error {
	return []error{e.Err, e.Undo}
}
