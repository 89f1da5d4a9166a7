package engine

import (
	"context"
	"sync"
)

// JobHandler is a function that processes one queued item.
type JobHandler[T any] func(context.Context, T) error

// WorkerPool manages a dynamic set of workers processing items from a channel.
type WorkerPool[T any] struct {
	jobChan <-chan T
	handler JobHandler[T]

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	workers     map[int]chan struct{}
	workerCount int
	nextID      int
	wg          sync.WaitGroup
}

// NewWorkerPool creates a new dynamic worker pool.
func NewWorkerPool[T any](ctx context.Context, jobChan <-chan T, handler JobHandler[T]) *WorkerPool[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool[T]{
		jobChan: jobChan,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[int]chan struct{}),
	}
}

// SetWorkerCount scales the number of workers up or down gracefully.
func (p *WorkerPool[T]) SetWorkerCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.workerCount < count {
		p.addWorker()
	}

	for p.workerCount > count {
		p.removeWorker()
	}
}

// WorkerCount returns the current target number of workers.
func (p *WorkerPool[T]) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

func (p *WorkerPool[T]) addWorker() {
	quitChan := make(chan struct{})
	id := p.nextID
	p.nextID++
	p.workers[id] = quitChan
	p.workerCount++
	p.wg.Add(1)

	go func(quit chan struct{}) {
		defer p.wg.Done()
		for {
			// Prioritize quit and context cancellation checking
			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			default:
			}

			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			case job, ok := <-p.jobChan:
				if !ok {
					return
				}
				_ = p.handler(p.ctx, job)
			}
		}
	}(quitChan)
}

func (p *WorkerPool[T]) removeWorker() {
	// Find arbitrary worker to decommission
	for id, quit := range p.workers {
		close(quit) // exits once its current item is done
		delete(p.workers, id)
		p.workerCount--
		return
	}
}

// Wait blocks until every worker has exited, which happens once the job
// channel is closed and drained.
func (p *WorkerPool[T]) Wait() {
	p.wg.Wait()
}

// Stop initiates termination of all workers and waits for them to exit.
// Items currently running see their context cancelled.
func (p *WorkerPool[T]) Stop() {
	p.cancel()
	p.wg.Wait()
}
