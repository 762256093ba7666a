package executor

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// processWaitDelay bounds how long a process gets between the termination
// signal and a hard kill.
const processWaitDelay = 5 * time.Second

// ProcessTask is implemented by tasks that run as a separate OS process.
// Command must build the command with the supplied context (via
// exec.CommandContext) so the executor can terminate it.
type ProcessTask interface {
	Task

	Command(ctx context.Context) (*exec.Cmd, error)
}

// processStrategy starts one OS process per task and waits for each to
// exit. Stopping cancels the run context, which delivers SIGTERM to the
// processes; a process that ignores it is killed after processWaitDelay.
type processStrategy struct{}

func (s *processStrategy) run(ctx context.Context, tasks []Task, results chan<- result) {
	for _, task := range tasks {
		go func(task Task) {
			results <- result{task: task, err: s.runOne(ctx, task.(ProcessTask))}
		}(task)
	}
}

func (s *processStrategy) runOne(ctx context.Context, task ProcessTask) error {
	cmd, err := task.Command(ctx)
	if err != nil {
		return fmt.Errorf("build command for task %s: %w", task.ID(), err)
	}

	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = processWaitDelay

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process for task %s: %w", task.ID(), err)
	}

	err = cmd.Wait()
	// An exit caused by our own termination signal is a clean stop.
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
