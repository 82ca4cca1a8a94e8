// Package routines provides a bounded pool of go-routines.
package routines

import "sync"

// Pool runs queued functions on a fixed number of go-routines.
// Queue never blocks, functions that can not be started immediately are
// buffered in an unbounded FIFO.
type Pool struct {
	lock   sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	wg sync.WaitGroup
}

// NewPool creates a Pool and starts workers go-routines.
// If workers is smaller then 1, 1 worker is started.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := Pool{}
	p.cond = sync.NewCond(&p.lock)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return &p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.lock.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}

		if len(p.queue) == 0 {
			p.lock.Unlock()
			return
		}

		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.lock.Unlock()

		fn()
	}
}

// Queue schedules fn to be run by a worker of the pool.
// Calling Queue after Wait() was called panics.
func (p *Pool) Queue(fn func()) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		panic("routines: Queue called on a pool that is waiting for termination")
	}

	p.queue = append(p.queue, fn)
	p.cond.Signal()
}

// Len returns the number of queued functions that have not been started yet.
func (p *Pool) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return len(p.queue)
}

// Wait waits until all queued functions ran and terminates the workers.
func (p *Pool) Wait() {
	p.lock.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.lock.Unlock()

	p.wg.Wait()
}
