// Copyright 2025 The go-datatile Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool runs the outer tile loops of a packed matmul on a fixed
// set of goroutines. A Pool is created once and shared by every Mmt4d call,
// so small matmuls do not pay for goroutine spawning.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	pool.ParallelFor(m1, func(start, end int) {
//	    for i := start; i < end; i++ {
//	        computeTileRow(i)
//	    }
//	})
//
// A panic in fn is re-raised with the same value in the goroutine that
// called ParallelFor or ParallelForAtomic, once every worker has finished.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool. It is safe for concurrent use; calls
// from different goroutines share the workers.
type Pool struct {
	numWorkers int
	tasks      chan task

	// mu is held for reading while a call sends its tasks, so Close never
	// closes tasks under a sender.
	mu     sync.RWMutex
	closed bool
}

type task struct {
	run  func()
	done *batch
}

// batch tracks the tasks of one ParallelFor call and the first panic any of
// them raised.
type batch struct {
	wg       sync.WaitGroup
	panicked atomic.Pointer[panicValue]
}

type panicValue struct{ v any }

func (b *batch) exec(run func()) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.panicked.CompareAndSwap(nil, &panicValue{r})
		}
	}()
	run()
}

func (b *batch) wait() {
	b.wg.Wait()
	if p := b.panicked.Load(); p != nil {
		panic(p.v)
	}
}

// New starts a pool of numWorkers goroutines. If numWorkers <= 0 it uses
// GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan task, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.tasks {
		t.done.exec(t.run)
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close stops the workers once queued work has run. It is safe to call more
// than once. A closed pool runs later calls on the caller's goroutine.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
}

// acquire reports whether tasks may be sent, and if so holds the pool open
// until release.
func (p *Pool) acquire() bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	return true
}

func (p *Pool) release() {
	p.mu.RUnlock()
}

// ParallelFor splits [0, n) into one contiguous chunk per worker and calls fn
// on each. It blocks until all chunks are done.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := p.workersFor(n)
	if workers == 1 || !p.acquire() {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	b := &batch{}
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		b.wg.Add(1)
		p.tasks <- task{run: func() { fn(start, end) }, done: b}
	}
	p.release()
	b.wait()
}

// ParallelForAtomic calls fn(i) for every i in [0, n), handing out indices
// one at a time so uneven work balances across workers. It blocks until all
// indices are done.
func (p *Pool) ParallelForAtomic(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := p.workersFor(n)
	if workers == 1 || !p.acquire() {
		for i := range n {
			fn(i)
		}
		return
	}
	var next atomic.Int64
	b := &batch{}
	b.wg.Add(workers)
	for range workers {
		p.tasks <- task{
			run: func() {
				for {
					i := int(next.Add(1)) - 1
					if i >= n {
						return
					}
					fn(i)
				}
			},
			done: b,
		}
	}
	p.release()
	b.wait()
}

// workersFor returns how many workers to use for n items: 1 on a nil pool.
func (p *Pool) workersFor(n int) int {
	if p == nil {
		return 1
	}
	return min(p.numWorkers, n)
}
