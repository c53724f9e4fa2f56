// Package processing runs artifact cleanup on a pool of background
// goroutines fed by a buffered channel.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

// ErrQueueFull is returned by Discard when the job buffer is exhausted.
var ErrQueueFull = errors.New("cleanup queue full")

// Job names one artifact to delete.
type Job struct {
	Namespace storage.Namespace
	Name      string
}

// Pool deletes artifacts asynchronously.
type Pool struct {
	store   storage.Store
	log     *zap.Logger
	queue   chan Job
	workers int
	wg      sync.WaitGroup
}

// New builds a Pool with queue capacity tied to worker count.
func New(store storage.Store, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		store:   store,
		log:     log,
		queue:   make(chan Job, workers*4),
		workers: workers,
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled; Wait
// blocks until they have.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Submit queues a job without blocking. A full buffer drops the job.
func (p *Pool) Submit(job Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
		p.log.Warn("cleanup queue full, dropping job",
			zap.String("namespace", string(job.Namespace)), zap.String("name", job.Name))
		return fmt.Errorf("%w: %s/%s", ErrQueueFull, job.Namespace, job.Name)
	}
}

// Discard implements upload.Janitor.
func (p *Pool) Discard(_ context.Context, ns storage.Namespace, name string) error {
	return p.Submit(Job{Namespace: ns, Name: name})
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, job Job) {
	err := p.store.Delete(ctx, job.Namespace, job.Name)
	switch {
	case err == nil:
		p.log.Info("removed artifact", zap.String("namespace", string(job.Namespace)), zap.String("name", job.Name))
	case errors.Is(err, storage.ErrNotFound):
	default:
		p.log.Error("remove artifact", zap.String("namespace", string(job.Namespace)), zap.String("name", job.Name), zap.Error(err))
	}
}
