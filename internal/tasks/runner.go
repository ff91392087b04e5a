// Package tasks runs pipeline invocations outside the request cycle.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Runner executes submitted work on its own goroutine. There is no
// queue and no concurrency cap: each accepted request spawns
// independent work, and a started run cannot be aborted.
type Runner struct {
	logger *zap.Logger
	wg     sync.WaitGroup
	active atomic.Int64
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Submit schedules fn on a background context. The run never inherits
// the HTTP request's cancellation; the response is long gone by the
// time the pipeline finishes.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	r.active.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.active.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Background task panicked", zap.String("task", name), zap.Any("panic", rec))
			}
		}()

		fn(context.Background())
	}()
}

// Active returns the number of in-flight tasks.
func (r *Runner) Active() int64 {
	return r.active.Load()
}

// Drain waits for in-flight tasks up to the given timeout and reports
// whether everything finished.
func (r *Runner) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
