// Package runner ties the pieces together: it binds live agents or
// on-disk agent project directories to an executor and manages the
// combined lifecycle, optionally on a background goroutine.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentwire-dev/agentwire/executor"
)

// ErrUnsupportedMode is returned when a configuration names a run mode
// that does not exist. It surfaces at construction time, before any task
// has started.
var ErrUnsupportedMode = errors.New("unsupported run mode")

// Runner drives one executor over a set of tasks.
type Runner struct {
	ex *executor.Executor

	mu      sync.Mutex
	running bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  error
}

// New builds a runner over prepared tasks, usually agent loops. Unknown
// mode strings yield ErrUnsupportedMode.
func New(tasks []executor.Task, mode, failPolicy string) (*Runner, error) {
	m, err := executor.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	policy, err := executor.ParseFailPolicy(failPolicy)
	if err != nil {
		return nil, err
	}

	ex, err := executor.New(tasks, executor.WithMode(m), executor.WithFailPolicy(policy))
	if err != nil {
		return nil, err
	}
	return &Runner{ex: ex}, nil
}

// Executor exposes the underlying executor, mainly for failure queries.
func (r *Runner) Executor() *executor.Executor { return r.ex }

// Start runs all tasks. With threaded true it returns immediately and the
// run continues on a background goroutine; otherwise it blocks until the
// run ends and returns its result. A runner runs at most once.
func (r *Runner) Start(threaded bool) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("runner: already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.started = true
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	if threaded {
		go r.run(ctx)
		return nil
	}
	return r.run(ctx)
}

func (r *Runner) run(ctx context.Context) error {
	err := r.ex.Start(ctx)

	r.mu.Lock()
	r.running = false
	r.result = err
	r.mu.Unlock()
	close(r.done)
	return err
}

// IsRunning reports whether the run is still in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop asks every task to wind down and, for a threaded run, waits up to
// timeout for the run to finish. A zero timeout waits indefinitely.
func (r *Runner) Stop(timeout time.Duration) error {
	r.mu.Lock()
	started := r.started
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if !started {
		return nil
	}

	_ = r.ex.Stop()
	cancel()

	if timeout == 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("runner: tasks did not stop within %s", timeout)
	}
}

// TryJoin reports whether a threaded run has finished, and with what
// result. It never blocks.
func (r *Runner) TryJoin() (bool, error) {
	r.mu.Lock()
	started := r.started
	done := r.done
	r.mu.Unlock()

	if !started {
		return false, nil
	}
	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return true, r.result
	default:
		return false, nil
	}
}
