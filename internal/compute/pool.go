// Package compute runs CPU-bound orbital computations on a bounded set of
// worker goroutines so that long searches cannot starve the scheduler or
// request handlers.
package compute

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of computations running at once. A nil *Pool runs
// work inline on the caller's goroutine.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool returns a pool admitting size concurrent computations. A size of
// zero or less uses GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return int(p.size)
}

// Run executes fn on a worker goroutine once a slot is free. It returns early
// with the context error when ctx ends; fn receives the same ctx and is
// expected to stop promptly.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p == nil {
		return fn(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("acquire compute slot: %w", err)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
