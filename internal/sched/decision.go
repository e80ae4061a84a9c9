// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"strconv"
	"time"
)

// Decision is the outcome of one do_schedule call: either run Next
// for SliceUS microseconds, or (Idle true) let the pCPU go idle until
// tickled. Migrated reports whether Next was obtained from a peer via
// the work-stealing balancer rather than popped from this pCPU's own
// runqueue.
type Decision struct {
	Next     VCPUHandle
	SliceUS  int32
	Idle     bool
	Migrated bool
}

// Dispatch runs one pass of do_schedule for cpu: account for the
// vcpu that just ran, decide whether it has earned another slice or
// must give up the pCPU, and otherwise pick the next runnable vcpu,
// falling back to the work-stealing balancer and finally to idling.
// tasklet reports whether a hypervisor tasklet is pending on cpu; per
// §4.8 step 5 a pending tasklet overrides whatever the runqueue would
// otherwise dispatch and idles the pCPU instead, so the tasklet gets
// to run. Corresponds to the decision half of csched_schedule /
// do_schedule.
func (s *State) Dispatch(cpu int, tasklet bool) Decision {
	p := s.pcpus[cpu]
	now := s.clock.Now()

	// Resolve any pending migration recommendation before taking
	// p.mu: pickCPU briefly takes Priv's lock, and the declared
	// nesting order (cpu-pool -> Priv -> pCPU) forbids acquiring
	// Priv's lock while a pCPU's own lock is already held. The vcpu
	// is re-checked against the fresh p.curr below in case it slept,
	// was removed, or was reinserted elsewhere in the meantime.
	preMigrateVH := VCPUHandle{}
	migrateTarget := -1
	p.mu.Lock()
	if p.curr.Valid() {
		if cv, ok := s.vcpu(p.curr); ok && cv.testAndClearFlag(FlagMigrating) {
			preMigrateVH = p.curr
		}
	}
	p.mu.Unlock()
	if preMigrateVH.Valid() {
		if t := s.pickCPU(preMigrateVH); t != cpu {
			migrateTarget = t
		}
	}

	p.mu.Lock()

	var curV *VCPU
	if p.curr.Valid() {
		if v, ok := s.vcpu(p.curr); ok {
			curV = v
			burnCredits(v, now)
			v.SetBand(classifyBand(v))
		} else {
			p.curr = VCPUHandle{}
		}
	}

	if curV != nil {
		ran := now.Sub(curV.startTime)
		ratelimit := time.Duration(s.ratelimitUS.Load()) * time.Microsecond
		if !tasklet && !curV.Yielding() && curV.Band() != BandOver && ran < ratelimit {
			p.mu.Unlock()
			return Decision{Next: p.curr, SliceUS: int32(ratelimit.Microseconds()), Idle: false}
		}

		// Current vcpu is giving up the pCPU: unconditionally reinsert
		// it into the runqueue (unless it was removed/slept/parked out
		// from under us), per §4.1/§4.8 steps 3-4, then fall through to
		// re-peek the head below. This is what lets two vcpus of the
		// same band round-robin a pCPU rather than one of them
		// monopolizing it merely because nothing of strictly higher
		// band is waiting.
		//
		// If Tick flagged this same vcpu for migration and the picker
		// still recommends a different pCPU, hand it to that pCPU's
		// runqueue instead, using TryLock the same way the balancer
		// avoids blocking against a peer that might be trying to steal
		// from us concurrently. A failed TryLock or a stale
		// recommendation just falls back to reinserting here; Tick
		// will ask again next period.
		if curV.runqElem == nil && !curV.Parked() {
			migratedAway := false
			if migrateTarget >= 0 && p.curr == preMigrateVH {
				if tp := s.pcpus[migrateTarget]; tp.mu.TryLock() {
					curV.Processor = migrateTarget
					s.runqInsert(tp, p.curr)
					tp.mu.Unlock()
					tp.tickle()
					migratedAway = true
				}
			}
			if !migratedAway {
				s.runqInsert(p, p.curr)
			}
		}
		curV.clearFlag(FlagYield)
		p.curr = VCPUHandle{}
	}

	if tasklet {
		p.mu.Unlock()
		s.updateIdlers(cpu)
		return Decision{Idle: true}
	}

	// Per do_schedule: only pop snext outright when it already beats
	// OVER. An empty runq or an OVER-banked head both route through
	// the balancer first, which either steals a higher-priority vcpu
	// onto this runqueue or leaves it for the fallback peek below.
	migrated := false
	if s.headBand(p) <= BandOver {
		if _, ok := s.loadBalance(p); ok {
			migrated = true
		}
	}

	nextH, ok := runqPeek(p)
	if !ok {
		p.curr = VCPUHandle{}
		p.mu.Unlock()
		s.updateIdlers(cpu)
		return Decision{Idle: true}
	}

	nextV, ok := s.vcpu(nextH)
	assert(ok, "runqueue referenced unknown vcpu %v", nextH)
	s.runqRemove(p, nextV)

	nextV.startTime = now
	nextV.lastRun = now
	p.curr = nextH

	dom, _ := s.domain(nextV.Domain)
	var slice int32 = DefaultTimesliceUS
	if dom != nil {
		slice = dom.TSliceUS()
	}
	nextV.publishSliceUS(slice)

	runnable := p.runnable
	p.mu.Unlock()
	s.updateIdlers(cpu)

	if s.metrics != nil {
		s.metrics.DispatchTotal.WithLabelValues(strconv.Itoa(p.Index)).Inc()
		s.metrics.RunqueueDepth.WithLabelValues(strconv.Itoa(p.Index)).Set(float64(runnable))
	}

	return Decision{Next: nextH, SliceUS: slice, Idle: false, Migrated: migrated}
}

// headBand reports the band of the highest-priority waiting vcpu, or
// BandIdle if the runqueue is empty. p.mu must be held.
func (s *State) headBand(p *PCPU) Band {
	h, ok := runqPeek(p)
	if !ok {
		return BandIdle
	}
	v, ok := s.vcpu(h)
	if !ok {
		return BandIdle
	}
	return v.Band()
}
