package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds fan-out when Orchestrator.Workers is unset.
const DefaultWorkers = 4

// Orchestrator runs a batch of independent fetch tasks over a bounded pool.
// Upstream budgets still apply per task through each client's limiter; the
// pool only caps how many tasks wait on them at once.
type Orchestrator struct {
	Workers int
	Clock   func() time.Time
}

// Task is one named unit of work in a batch.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskResult records how a task finished.
type TaskResult struct {
	Name       string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run executes tasks and returns one result per task in input order. A failed
// task does not stop the others; only cancellation of ctx aborts the batch.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) ([]TaskResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	for _, task := range tasks {
		if strings.TrimSpace(task.Name) == "" {
			return nil, fmt.Errorf("task name is required")
		}
		if task.Run == nil {
			return nil, fmt.Errorf("task %s has no run function", task.Name)
		}
	}

	results := make([]TaskResult, len(tasks))
	group := &errgroup.Group{}
	group.SetLimit(o.workers())

	for i, task := range tasks {
		group.Go(func() error {
			result := TaskResult{Name: task.Name, StartedAt: o.now()}
			if err := ctx.Err(); err != nil {
				result.Err = err
			} else {
				result.Err = task.Run(ctx)
			}
			result.FinishedAt = o.now()
			results[i] = result
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (o *Orchestrator) workers() int {
	if o == nil || o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
