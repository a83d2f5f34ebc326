package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"idPhoto/client/middleware"
)

type Job func(ctx context.Context) error

// WorkerPool runs jobs with at most maxWorkers in parallel. A job that
// panics is logged and counted as failed.
type WorkerPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger

	mu   sync.Mutex
	errs []error
}

func NewWorkerPool(maxWorkers int, logger *zap.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem:    make(chan struct{}, maxWorkers),
		logger: logger,
	}
}

// Submit schedules job. A job whose ctx is done before it gets a slot is
// dropped with ctx.Err().
func (p *WorkerPool) Submit(ctx context.Context, job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := ctx.Err(); err != nil {
			p.record(err)
			return
		}

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			if err := p.run(ctx, job); err != nil {
				p.record(err)
			}
		case <-ctx.Done():
			p.record(ctx.Err())
		}
	}()
}

func (p *WorkerPool) run(ctx context.Context, job Job) (err error) {
	defer middleware.Recover(ctx, p.logger, &err)
	return job(ctx)
}

func (p *WorkerPool) record(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

// Wait blocks until every submitted job has finished and returns the
// errors they produced, in completion order.
func (p *WorkerPool) Wait() []error {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	errs := p.errs
	p.errs = nil
	return errs
}
