package multicast

import (
	"sync"
	"time"

	"github.com/creastat/multicast/core"
)

// WorkerPool is a fixed-size pool of goroutines running submitted tasks.
// It implements core.Executor.
type WorkerPool struct {
	size  int
	tasks chan func()
	wg    sync.WaitGroup
	done  chan struct{}
	quit  chan struct{} // closed by Shutdown

	mu       sync.RWMutex
	shutdown bool
	pending  sync.WaitGroup // Submit calls past the shutdown check
}

// NewWorkerPool starts a pool with size workers. A size <= 0 uses core.DefaultPoolSize.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = core.DefaultPoolSize
	}

	p := &WorkerPool{
		size:  size,
		tasks: make(chan func(), size*16),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}

	p.wg.Add(size)
	for range size {
		go p.work()
	}

	// Close done once every worker has drained the queue and exited
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return p
}

// work runs tasks until the queue is closed and drained
func (p *WorkerPool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Size returns the number of workers
func (p *WorkerPool) Size() int {
	return p.size
}

// Submit queues task for execution. It blocks while the queue is full and
// returns core.ErrPoolShutdown once Shutdown was called, including when
// Shutdown happens while it waits for room in the queue.
//
// A task that submits to its own pool can still deadlock when every worker
// does so against a full queue; nested engines sharing a pool should size it
// for their combined fan-out.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	if p.shutdown {
		p.mu.RUnlock()
		return core.ErrPoolShutdown
	}
	p.pending.Add(1)
	p.mu.RUnlock()
	defer p.pending.Done()

	select {
	case <-p.quit:
		return core.ErrPoolShutdown
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return core.ErrPoolShutdown
	}
}

// Shutdown stops accepting tasks. Tasks already queued still run.
// Calling Shutdown more than once is safe and it never blocks.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return
	}
	p.shutdown = true
	close(p.quit)

	// The queue closes once no Submit can send anymore
	go func() {
		p.pending.Wait()
		close(p.tasks)
	}()
}

// IsShutdown reports whether Shutdown was called
func (p *WorkerPool) IsShutdown() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shutdown
}

// AwaitTermination waits up to timeout for all workers to exit after
// Shutdown and reports whether they did. A zero timeout only checks.
func (p *WorkerPool) AwaitTermination(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-p.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}
