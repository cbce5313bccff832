package search

import "sync"

// Pool is a small, fixed-size worker pool: search sessions submit their
// jobs here rather than spawning a goroutine per task, the Go
// analogue of the source's own bespoke executor (context.executor.add).
// Deliberately not built on golang.org/x/sync/errgroup or any other
// scheduler library: the source's own worker pool is a few hundred lines
// of bespoke code, not a library, and nothing in the corpus offers a
// closer match for "fixed pool of background workers draining a job
// channel".
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewPool starts workers goroutines, each pulling jobs off a shared
// channel until Close.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan func())}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit enqueues fn to run on some worker. Blocks if every worker is busy
// and no other job is queued, applying natural backpressure instead of an
// unbounded queue.
func (p *Pool) Submit(fn func()) {
	p.jobs <- fn
}

// Close stops accepting new jobs and waits for in-flight ones to finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
