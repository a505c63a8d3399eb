// Package worker runs queued jobs on a shared semaphore so the number of
// concurrently handled chat updates stays bounded.
package worker

import "context"

type StartOptions[J any] struct {
	Ctx    context.Context
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)
}

// Start consumes jobs until the context is done or the channel closes. Each
// job holds a semaphore slot for its whole handling, including suspension at
// oracle calls and outbound sends.
func Start[J any](opts StartOptions[J]) {
	go func() {
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case job, ok := <-opts.Jobs:
				if !ok {
					return
				}
				select {
				case opts.Sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				go func(job J) {
					defer func() { <-opts.Sem }()
					opts.Handle(opts.Ctx, job)
				}(job)
			}
		}
	}()
}

// Enqueue blocks until the job is queued or either context is canceled.
func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}
