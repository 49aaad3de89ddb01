// Package worker provides the bounded concurrency layer for batch
// processing. A fixed pool of goroutines drains a task queue; each
// task gets a per-task deadline and a timed-out task is reported as an
// ERROR result; the worker moves on immediately and any late result
// from the abandoned goroutine is dropped.
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/model"
)

// Task is one unit of batch work: a source identifier plus the
// function that produces its result.
type Task struct {
	SourceID string
	Run      func(ctx context.Context) model.Result
}

// Pool executes tasks with bounded concurrency. A Pool is reusable
// across batches and safe for concurrent Process calls.
type Pool struct {
	size    int
	timeout time.Duration
	log     *zap.Logger
}

// NewPool builds a pool. Non-positive size falls back to one worker.
func NewPool(size int, timeout time.Duration, log *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{size: size, timeout: timeout, log: log}
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Process runs every task and returns one result per task, sorted by
// source identifier so batch output is stable regardless of
// completion order. Cancelling ctx stops dispatch; tasks already
// running still report.
func (p *Pool) Process(ctx context.Context, tasks []Task) []model.Result {
	if len(tasks) == 0 {
		return nil
	}

	queue := make(chan Task)
	out := make(chan model.Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				out <- p.runOne(ctx, task)
			}
		}()
	}

dispatch:
	for _, task := range tasks {
		select {
		case queue <- task:
		case <-ctx.Done():
			out <- cancelledResult(task)
			// Remaining tasks short-circuit without touching workers.
			break dispatch
		}
	}
	close(queue)
	wg.Wait()
	close(out)

	results := make([]model.Result, 0, len(tasks))
	for r := range out {
		results = append(results, r)
	}

	// Dispatch may have stopped early; synthesize results for tasks
	// that never reached the queue.
	if missing := len(tasks) - len(results); missing > 0 {
		seen := make(map[string]struct{}, len(results))
		for _, r := range results {
			seen[r.SourceID] = struct{}{}
		}
		for _, task := range tasks {
			if _, ok := seen[task.SourceID]; !ok {
				results = append(results, cancelledResult(task))
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SourceID < results[j].SourceID })
	return results
}

// runOne executes a single task under the per-task deadline. On
// timeout the worker moves on with a synthesized ERROR result; the
// task goroutine keeps running and its late result is dropped.
func (p *Pool) runOne(ctx context.Context, task Task) model.Result {
	if p.timeout <= 0 {
		return task.Run(ctx)
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan model.Result, 1)
	go func() {
		done <- task.Run(taskCtx)
	}()

	select {
	case r := <-done:
		return r
	case <-taskCtx.Done():
		p.log.Warn("task deadline exceeded",
			zap.String("source_id", task.SourceID),
			zap.Duration("timeout", p.timeout))
		return model.Result{
			SourceID:    task.SourceID,
			Status:      model.StatusError,
			StatusError: fmt.Sprintf("processing exceeded %s", p.timeout),
			Fused:       model.FusedRecord{Methods: model.NoneMethods()},
		}
	}
}

func cancelledResult(task Task) model.Result {
	return model.Result{
		SourceID:    task.SourceID,
		Status:      model.StatusError,
		StatusError: "batch cancelled before processing",
		Fused:       model.FusedRecord{Methods: model.NoneMethods()},
	}
}
