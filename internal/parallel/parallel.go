// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package parallel provides the worker pool used by the Lattice engine and
// kernels. The pool is a capability passed into the executor rather than an
// ambient singleton, so tests can force single-threaded execution.
package parallel

import (
	"runtime"
	"sync"
)

// Pool describes how much parallelism callers may use. It is stateless
// between dispatches; goroutines are spawned per call and joined before
// returning, so no per-run state can leak across invocations.
type Pool struct {
	workers      int
	minChunkSize int
}

// New creates a pool that dispatches work to at most workers goroutines.
// A pool with one worker executes everything sequentially.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, minChunkSize: 64}
}

// Serial returns a pool that never parallelizes. Used in tests and as the
// deterministic baseline.
func Serial() *Pool {
	return New(1)
}

var (
	defaultPool *Pool
	defaultOnce sync.Once
)

// Default returns the process-wide pool, sized to the CPU count at first use.
func Default() *Pool {
	defaultOnce.Do(func() {
		defaultPool = New(runtime.NumCPU())
	})
	return defaultPool
}

// Workers returns the maximum number of goroutines the pool will use.
func (p *Pool) Workers() int {
	return p.workers
}

// For executes f(i) for i in [0, n). Work is split into contiguous chunks
// across workers; small ranges run sequentially to avoid overhead. Each
// parallel unit owns a disjoint index range, so callers writing only to
// position i are race-free.
func (p *Pool) For(n int, f func(i int)) {
	if p.workers == 1 || n < p.minChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+p.workers-1)/p.workers, p.minChunkSize)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForEager is For without the minimum chunk heuristic: every index may run
// on its own goroutine. The engine uses it to dispatch operator nodes,
// where per-item work dwarfs scheduling overhead.
func (p *Pool) ForEager(n int, f func(i int)) {
	if p.workers == 1 || n == 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			f(i)
			<-sem
		}(i)
	}
	wg.Wait()
}
