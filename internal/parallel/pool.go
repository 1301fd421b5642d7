// Package parallel runs batches of independent tasks on a fixed set of
// goroutines. The software compute device uses it to execute kernel
// workgroups.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// PanicError wraps a panic recovered from a task.
type PanicError struct {
	Task  int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: task %d panicked: %v", e.Task, e.Value)
}

// WorkerPool is a pool of goroutines for running kernel workgroups.
//
// Each worker owns a queue. A worker whose queue is empty steals from the
// others, which balances batches where some tasks run longer than others.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one task from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run calls fn(i) for every i in [0, n) across the workers and waits for all
// of them. A panicking task does not take down its worker; the first panic
// is returned as a *PanicError once every task has finished.
//
// Run on a closed pool executes the tasks on the calling goroutine.
func (p *WorkerPool) Run(n int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		firstErr atomic.Pointer[PanicError]
	)
	task := func(i int) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				firstErr.CompareAndSwap(nil, &PanicError{Task: i, Value: r})
			}
		}()
		fn(i)
	}

	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		if !p.running.Load() {
			task(i)
			continue
		}
		select {
		case p.workQueues[i%p.workers] <- func() { task(i) }:
		case <-p.done:
			task(i)
		}
	}
	wg.Wait()

	if e := firstErr.Load(); e != nil {
		return e
	}
	return nil
}

// Close stops the workers after the queued work has run.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
