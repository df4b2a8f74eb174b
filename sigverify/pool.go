// Package sigverify simulates per-transaction authentication cost of a worker by verifying
// a fixed corpus of signatures in parallel shards.
package sigverify

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the number of CPUs usable by the process.
func DefaultPoolSize() int {
	return runtime.GOMAXPROCS(0)
}

// Pool is a bounded pool of CPU workers.
// A single Pool is meant to be shared by every component of a node doing CPU-bound work,
// so that concurrent users together never exceed its size.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a Pool running at most size tasks at once.
// Non-positive sizes fall back to DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Map calls fn for every index in [0, n) on the pool and waits for all of them.
// It returns the first error returned by fn; once an error occurs no new indexes are
// scheduled.
func (p *Pool) Map(ctx context.Context, n int, fn func(i int) error) error {
	wg, wctx := errgroup.WithContext(ctx)
	for i := range n {
		if err := p.sem.Acquire(wctx, 1); err != nil {
			// either fn failed or the caller has canceled
			break
		}

		wg.Go(func() error {
			defer p.sem.Release(1)
			return fn(i)
		})
	}

	if err := wg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
