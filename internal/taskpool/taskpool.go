// Package taskpool runs independent I/O-bound tasks with a concurrency ceiling.
package taskpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a pool is built with a non-positive limit.
const DefaultConcurrency = 6

// Task is one unit of work. Execute is required; the callbacks are optional
// and run on the task's goroutine once Execute settles.
type Task[T any] struct {
	Execute   func(ctx context.Context) (T, error)
	OnSuccess func(T)
	OnError   func(error)
}

// TaskError pairs a failure with the index of the task that produced it.
type TaskError struct {
	Err   error
	Index int
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

func (e TaskError) Unwrap() error { return e.Err }

// Result aggregates one Run. Success is in completion order.
type Result[T any] struct {
	Success []T
	Errors  []TaskError
}

// Pool bounds how many tasks execute at once. A Pool may be reused.
type Pool[T any] struct {
	limit int
}

// New returns a pool running at most limit tasks concurrently.
func New[T any](limit int) *Pool[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Pool[T]{limit: limit}
}

// Limit reports the concurrency ceiling.
func (p *Pool[T]) Limit() int { return p.limit }

// Run starts tasks in submission order, never more than Limit at a time, and
// returns once every task has succeeded or failed. A failing task does not
// cancel its siblings; ctx is only handed through to Execute.
func (p *Pool[T]) Run(ctx context.Context, tasks []Task[T]) Result[T] {
	var (
		mu  sync.Mutex
		res Result[T]
		g   errgroup.Group
	)
	g.SetLimit(p.limit)
	for i, task := range tasks {
		g.Go(func() error {
			v, err := runTask(ctx, task)
			if err != nil {
				mu.Lock()
				res.Errors = append(res.Errors, TaskError{Err: err, Index: i})
				mu.Unlock()
				if task.OnError != nil {
					task.OnError(err)
				}
				return nil
			}
			mu.Lock()
			res.Success = append(res.Success, v)
			mu.Unlock()
			if task.OnSuccess != nil {
				task.OnSuccess(v)
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func runTask[T any](ctx context.Context, task Task[T]) (v T, err error) {
	if task.Execute == nil {
		return v, fmt.Errorf("task has no Execute function")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Execute(ctx)
}
