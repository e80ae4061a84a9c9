// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// PCPU is one simulated physical CPU: a runqueue, a schedule lock
// guarding it, and the bookkeeping do_schedule and the load balancer
// need. It corresponds to struct csched_pcpu.
type PCPU struct {
	Index int

	// mu is the per-pCPU schedule lock. Lock ordering throughout this
	// package is: Priv.mu before any PCPU.mu; among PCPUs, the load
	// balancer only ever takes a second PCPU's lock via TryLock, never
	// blocking, to avoid A-waits-B/B-waits-A deadlocks during a steal.
	mu sync.Mutex

	runq      *list.List // of VCPUHandle
	runnable  int
	idleBias  int
	lastTickleCPU int

	runqSortEpoch uint32 // last epoch this pCPU's runq was known sorted at

	curr VCPUHandle // currently dispatched vcpu, zero value if idle

	tickleCh chan struct{}

	online bool

	// suspended is set by TickSuspend/TickResume around a simulated
	// power event; the pCPU loop skips tick/accounting/metric work
	// while it is true but keeps rearming timers so it picks back up
	// the instant TickResume clears it.
	suspended atomic.Bool

	// taskletPending is set by RaiseTasklet and consumed (cleared) by
	// the next Dispatch call for this pCPU: the tasklet_pending input
	// to do_schedule named in §4.8 step 5 and §6. Tasklet delivery
	// plumbing itself is out of scope (§1); this is the seam the
	// hypervisor core would drive it through.
	taskletPending atomic.Bool
}

func newPCPU(index int) *PCPU {
	return &PCPU{
		Index:    index,
		runq:     list.New(),
		tickleCh: make(chan struct{}, 1),
		online:   true,
	}
}

// tickle wakes this pCPU's dispatch loop without blocking if it is
// already pending a wakeup, mirroring the non-blocking semantics of
// raising a softirq.
func (p *PCPU) tickle() {
	select {
	case p.tickleCh <- struct{}{}:
	default:
	}
}

func (p *PCPU) Runnable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runnable
}

func (p *PCPU) Current() VCPUHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curr
}

// raiseTasklet marks the pCPU as having a pending tasklet and wakes
// its dispatch loop, so the next Dispatch call observes it.
func (p *PCPU) raiseTasklet() {
	p.taskletPending.Store(true)
	p.tickle()
}
