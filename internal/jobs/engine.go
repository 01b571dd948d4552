package jobs

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Engine runs the scheduler and worker tick loops side by side for the
// life of the worker process. Splitting them into two types keeps their
// claim queries and lease semantics independent (automation rules vs.
// jobs) while Engine is just the process-level convenience of starting
// both.
type Engine struct {
	Scheduler *Scheduler
	Worker    *Worker
}

// Run blocks until ctx is cancelled or either loop returns a non-context
// error, at which point the other loop is cancelled too.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Scheduler.Run(ctx) })
	g.Go(func() error { return e.Worker.Run(ctx) })
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
