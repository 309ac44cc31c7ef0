// Package worker serializes access to the inference engine.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
)

// ErrShutdown is returned for work submitted after Shutdown.
var ErrShutdown = errors.New("worker: shutdown")

// Config controls the pool.
type Config struct {
	// Workers defaults to 1; the loaded model is not reentrant.
	Workers int
	Metrics *metrics.Metrics
}

// Pool runs submitted jobs on a fixed set of goroutines. There is no queue
// limit: Submit waits until a worker accepts the job or ctx ends.
type Pool struct {
	jobs     chan job
	wg       sync.WaitGroup
	inflight sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}

	metrics *metrics.Metrics
}

type job struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// NewPool starts the workers.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	p := &Pool{
		jobs:    make(chan job),
		closed:  make(chan struct{}),
		metrics: cfg.Metrics,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit runs fn on a worker and returns its error. ctx bounds the wait for
// a worker; once the job is accepted Submit returns only after fn does, so fn
// must watch its own ctx argument to stop early.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-p.closed:
		return ErrShutdown
	default:
	}

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	p.metrics.JobWaiting(1)
	select {
	case p.jobs <- j:
		p.metrics.JobWaiting(-1)
	case <-p.closed:
		p.metrics.JobWaiting(-1)
		return ErrShutdown
	case <-ctx.Done():
		p.metrics.JobWaiting(-1)
		return ctx.Err()
	}

	return <-j.result
}

// Shutdown stops accepting work and waits for the running job.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.closed:
			return
		case j := <-p.jobs:
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	p.inflight.Add(1)
	defer p.inflight.Done()

	p.metrics.JobStarted()
	err := j.fn(j.ctx)
	p.metrics.JobFinished(err)
	j.result <- err
}
