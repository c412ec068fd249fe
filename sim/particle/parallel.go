// Chunked worker pool for per-particle kernels.

package particle

import (
	"runtime"
	"sync"
)

// serialThreshold is the minimum element count to fan a kernel out across
// workers. Below this, single-threaded is faster than goroutine dispatch.
const serialThreshold = 2048

// Pool runs data-parallel kernels over contiguous index chunks, one logical
// thread per element. Kernels must follow a write-once-per-slot discipline:
// each output slot is written by exactly one chunk, so no synchronization is
// needed beyond the implicit barrier when Run returns.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker count; 0 means GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Run partitions [0, n) into at most workers chunks and invokes kernel on
// each concurrently, returning after all chunks complete.
func (p *Pool) Run(n int, kernel func(start, end int)) {
	if n <= 0 {
		return
	}
	if n < serialThreshold || p.workers == 1 {
		kernel(0, n)
		return
	}

	chunk := (n + p.workers - 1) / p.workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			kernel(s, e)
		}(start, end)
	}
	wg.Wait()
}
