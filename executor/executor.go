// Package executor runs a set of agent tasks under one supervision loop.
// Tasks run concurrently in goroutines, cooperatively in a single
// round-robin scheduler, or as separate OS processes; the loop observes
// completions in the order they happen and reacts to failures according to
// the configured fail policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	tracing "github.com/agentwire-dev/agentwire/internal/observability"
	"github.com/agentwire-dev/agentwire/pkg/observability"
)

// Task is one unit of work the executor supervises. Start must honor ctx
// cancellation; returning context.Canceled after a requested stop is not
// counted as a failure.
type Task interface {
	// ID names the task in logs and errors.
	ID() string

	// Start runs the task to completion.
	Start(ctx context.Context) error

	// Stop asks the task to wind down. It may be called concurrently with
	// Start and more than once.
	Stop() error
}

// Stepper is implemented by tasks that can run under the cooperative
// scheduler. Step performs one bounded slice of work and reports whether
// the task has finished.
type Stepper interface {
	Task

	Step(ctx context.Context) (done bool, err error)
}

// FailPolicy selects how the supervision loop reacts when a task fails.
type FailPolicy int

const (
	// Propagate stops every task and returns the first failure from Start.
	Propagate FailPolicy = iota
	// StopAll stops every task but Start returns nil.
	StopAll
	// LogOnly records the failure and keeps the remaining tasks running.
	LogOnly
)

// String returns the policy name as used in configuration.
func (p FailPolicy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case StopAll:
		return "stop_all"
	case LogOnly:
		return "log_only"
	default:
		return "unknown"
	}
}

// ParseFailPolicy converts a configuration string to a FailPolicy.
func ParseFailPolicy(s string) (FailPolicy, error) {
	switch s {
	case "propagate", "":
		return Propagate, nil
	case "stop_all":
		return StopAll, nil
	case "log_only":
		return LogOnly, nil
	default:
		return Propagate, fmt.Errorf("unknown fail policy: %q", s)
	}
}

// Mode selects the execution strategy.
type Mode string

const (
	// ModeThread runs each task in its own goroutine.
	ModeThread Mode = "thread"
	// ModeCooperative runs all tasks in one goroutine, round-robin over
	// their Step methods. Every task must implement Stepper.
	ModeCooperative Mode = "cooperative"
	// ModeProcess runs each task as a separate OS process. Every task must
	// implement ProcessTask.
	ModeProcess Mode = "process"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeThread, "":
		return ModeThread, nil
	case ModeCooperative:
		return ModeCooperative, nil
	case ModeProcess:
		return ModeProcess, nil
	default:
		return "", fmt.Errorf("unknown executor mode: %q", s)
	}
}

// Option configures an Executor.
type Option func(*Executor)

// WithMode selects the execution strategy (default ModeThread).
func WithMode(mode Mode) Option {
	return func(e *Executor) { e.mode = mode }
}

// WithFailPolicy selects the failure reaction (default Propagate).
func WithFailPolicy(policy FailPolicy) Option {
	return func(e *Executor) { e.policy = policy }
}

type result struct {
	task Task
	err  error
}

// Executor supervises a fixed set of tasks.
type Executor struct {
	tasks  []Task
	mode   Mode
	policy FailPolicy

	mu     sync.Mutex
	failed map[string]error

	stopping atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc

	strategy strategy
}

// New builds an executor over tasks. It fails when a task is incompatible
// with the selected mode, or when two tasks share an id.
func New(tasks []Task, opts ...Option) (*Executor, error) {
	if len(tasks) == 0 {
		return nil, errors.New("executor: no tasks")
	}

	e := &Executor{
		tasks:  tasks,
		mode:   ModeThread,
		policy: Propagate,
		failed: make(map[string]error),
	}
	for _, opt := range opts {
		opt(e)
	}

	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if seen[task.ID()] {
			return nil, fmt.Errorf("executor: duplicate task id %q", task.ID())
		}
		seen[task.ID()] = true
	}

	switch e.mode {
	case ModeThread:
		e.strategy = &threadStrategy{}
	case ModeCooperative:
		for _, task := range tasks {
			if _, ok := task.(Stepper); !ok {
				return nil, fmt.Errorf("executor: task %s does not support cooperative mode", task.ID())
			}
		}
		e.strategy = &cooperativeStrategy{}
	case ModeProcess:
		for _, task := range tasks {
			if _, ok := task.(ProcessTask); !ok {
				return nil, fmt.Errorf("executor: task %s does not support process mode", task.ID())
			}
		}
		e.strategy = &processStrategy{}
	default:
		return nil, fmt.Errorf("executor: unknown mode %q", e.mode)
	}

	return e, nil
}

// Mode returns the configured execution strategy.
func (e *Executor) Mode() Mode { return e.mode }

// FailPolicy returns the configured failure reaction.
func (e *Executor) FailPolicy() FailPolicy { return e.policy }

// Start runs all tasks and blocks until every one has completed. Task
// completions are processed in the order they occur. Under Propagate the
// first failure is returned after all tasks have wound down; under the
// other policies Start returns nil unless ctx itself fails.
func (e *Executor) Start(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "executor.Start")
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	results := make(chan result, len(e.tasks))
	e.strategy.run(runCtx, e.tasks, results)
	observability.RunningTasks.Add(float64(len(e.tasks)))

	var firstErr error
	for completed := 0; completed < len(e.tasks); completed++ {
		res := <-results
		observability.RunningTasks.Dec()

		if !e.isFailure(res.err) {
			continue
		}

		e.mu.Lock()
		e.failed[res.task.ID()] = res.err
		e.mu.Unlock()
		observability.TaskFailures.WithLabelValues(e.policy.String()).Inc()
		log.Printf("ERROR: task %s failed: %v", res.task.ID(), res.err)

		switch e.policy {
		case LogOnly:
			// Remaining tasks keep running.
		case StopAll:
			log.Printf("WARNING: stopping executor according to fail policy %s", e.policy)
			e.initiateStop()
		case Propagate:
			if firstErr == nil {
				firstErr = fmt.Errorf("task %s: %w", res.task.ID(), res.err)
			}
			log.Printf("WARNING: stopping executor according to fail policy %s", e.policy)
			e.initiateStop()
		}
	}

	tracing.RecordError(span, firstErr)
	return firstErr
}

// Stop asks every task to wind down. It is safe to call concurrently and
// more than once; Start keeps blocking until the tasks have actually
// finished.
func (e *Executor) Stop() error {
	e.initiateStop()
	return nil
}

func (e *Executor) initiateStop() {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		e.mu.Lock()
		cancel := e.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		for _, task := range e.tasks {
			if err := task.Stop(); err != nil {
				log.Printf("WARNING: stopping task %s: %v", task.ID(), err)
			}
		}
	})
}

// isFailure reports whether a task result counts as a failure. Errors that
// surface after a stop was requested are wind-down noise, not failures,
// as are plain cancellations.
func (e *Executor) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !e.stopping.Load()
}

// FailedTasks returns the tasks that have failed so far.
func (e *Executor) FailedTasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	var failed []Task
	for _, task := range e.tasks {
		if _, ok := e.failed[task.ID()]; ok {
			failed = append(failed, task)
		}
	}
	return failed
}

// NotFailedTasks returns the tasks that have not failed so far.
func (e *Executor) NotFailedTasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ok []Task
	for _, task := range e.tasks {
		if _, failed := e.failed[task.ID()]; !failed {
			ok = append(ok, task)
		}
	}
	return ok
}
