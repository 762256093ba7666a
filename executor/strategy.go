package executor

import (
	"context"
	"time"
)

// cooperativeRoundPause throttles the scheduler between full rounds so
// idle tasks do not spin a core.
const cooperativeRoundPause = time.Millisecond

// strategy drives a set of tasks and delivers exactly one result per task
// on the results channel. The channel is buffered for the full task count,
// so strategies never block on delivery.
type strategy interface {
	run(ctx context.Context, tasks []Task, results chan<- result)
}

// threadStrategy runs every task in its own goroutine.
type threadStrategy struct{}

func (s *threadStrategy) run(ctx context.Context, tasks []Task, results chan<- result) {
	for _, task := range tasks {
		go func(task Task) {
			results <- result{task: task, err: task.Start(ctx)}
		}(task)
	}
}

// cooperativeStrategy runs all tasks in one goroutine, giving each a Step
// call per round. A task leaves the rotation when it reports done or
// returns an error. Cancelling ctx flushes the remaining tasks with the
// context's error.
type cooperativeStrategy struct{}

func (s *cooperativeStrategy) run(ctx context.Context, tasks []Task, results chan<- result) {
	active := make([]Stepper, 0, len(tasks))
	for _, task := range tasks {
		active = append(active, task.(Stepper))
	}

	go func() {
		for len(active) > 0 {
			if err := ctx.Err(); err != nil {
				for _, task := range active {
					results <- result{task: task, err: err}
				}
				return
			}

			remaining := active[:0]
			for _, task := range active {
				done, err := task.Step(ctx)
				if err != nil {
					results <- result{task: task, err: err}
					continue
				}
				if done {
					results <- result{task: task}
					continue
				}
				remaining = append(remaining, task)
			}
			active = remaining

			if len(active) > 0 {
				select {
				case <-time.After(cooperativeRoundPause):
				case <-ctx.Done():
				}
			}
		}
	}()
}
