// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks in goroutines, limiting how many run at the same time.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. Create it with New.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time.
	// 0 runs tasks inline, and < 0 means no limit.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a Pool that runs up to maxParallelism tasks at a time.
//
// If maxParallelism is 0, tasks are run inline by WaitToStart. If it is negative, there is no limit.
func New(maxParallelism int) *Pool {
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// NewDefault returns a Pool with parallelism set to runtime.NumCPU().
func NewDefault() *Pool {
	return New(runtime.NumCPU())
}

// MaxParallelism returns the limit of tasks running at the same time. See New.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// lockedIsFull must be called with p.mu locked.
func (p *Pool) lockedIsFull() bool {
	return p.maxParallelism >= 0 && p.numRunning >= p.maxParallelism
}

// WaitToStart waits until there is a worker available and runs the task in a goroutine.
//
// If the parallelism is 0, the task runs inline, and WaitToStart only returns after it finishes.
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		defer p.taskDone()
		task()
	}()
}

func (p *Pool) taskDone() {
	p.mu.Lock()
	p.numRunning--
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Wait until all the tasks started so far finish.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numRunning > 0 {
		p.cond.Wait()
	}
}

// Map calls fn(ii) for ii in [0, n), using the pool, and returns once they are all done.
func (p *Pool) Map(n int, fn func(ii int)) {
	for ii := range n {
		p.WaitToStart(func() { fn(ii) })
	}
	p.Wait()
}
