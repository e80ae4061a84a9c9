// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"container/list"
	"sync/atomic"
	"time"

	"vcshed/internal/affinity"
	"vcshed/internal/pmc"
)

// VCPU is one schedulable unit of virtual CPU time, belonging to
// exactly one Domain. Credit and Band are accessed from multiple
// goroutines without always holding the same lock (the master
// accountant runs under Priv's lock; the owning pCPU's schedule loop
// runs under that pCPU's lock), so both are atomics: a reader that
// observes a slightly stale value is tolerated by design, the same
// way original_source tolerates a torn, non-atomic read of these
// fields across CPUs.
type VCPU struct {
	Self   VCPUHandle
	Domain DomainHandle

	credit atomic.Int32
	band   atomic.Int32
	flags  atomic.Uint32

	// Processor is the pCPU index this vCPU currently runs on (or is
	// queued on). It is mutated only while the owning pCPU's
	// schedule lock is held (by the schedule loop itself, or by a
	// stealing pCPU that has successfully trylocked both sides), so
	// plain reads under that same lock are never torn.
	Processor int

	Affinity affinity.Set

	// runqElem is this vCPU's node in its current pCPU's runqueue,
	// or nil when not enqueued. Owning pCPU's lock protects it.
	runqElem *list.Element

	// activeElem is this vCPU's node in its domain's active-vcpu
	// list. Priv's lock protects it.
	activeElem *list.Element

	startTime time.Time // last dispatch timestamp, for burn_credits
	lastRun   time.Time // for cache-hot checks by the picker

	pmcSource pmc.Source
	prevPMC   pmc.Sample

	// publishedSliceUS is the time slice in microseconds this vCPU
	// was last dispatched for, published by Dispatch from its domain's
	// controller-set slice. It is read through PublishedSliceUS
	// without a lock.
	publishedSliceUS atomic.Int32
}

// initVCPU initializes a zero-value VCPU in place, so a slot already
// living in an arena never has its atomic fields copied.
func initVCPU(v *VCPU, self VCPUHandle, dom DomainHandle, aff affinity.Set, src pmc.Source) {
	v.Self = self
	v.Domain = dom
	v.Affinity = aff
	v.pmcSource = src
	v.band.Store(int32(BandUnder))
	v.publishedSliceUS.Store(DefaultTimesliceUS)
}

func (v *VCPU) Credit() int32        { return v.credit.Load() }
func (v *VCPU) SetCredit(c int32)    { v.credit.Store(c) }
func (v *VCPU) AddCredit(d int32) int32 { return v.credit.Add(d) }

func (v *VCPU) Band() Band     { return Band(v.band.Load()) }
func (v *VCPU) SetBand(b Band) { v.band.Store(int32(b)) }

func (v *VCPU) Flags() Flags { return Flags(v.flags.Load()) }

func (v *VCPU) setFlag(f Flags) {
	for {
		old := v.flags.Load()
		if old&uint32(f) != 0 {
			return
		}
		if v.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (v *VCPU) clearFlag(f Flags) {
	for {
		old := v.flags.Load()
		if old&uint32(f) == 0 {
			return
		}
		if v.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// testAndClearFlag clears f and reports whether it had been set,
// atomically.
func (v *VCPU) testAndClearFlag(f Flags) bool {
	for {
		old := v.flags.Load()
		if old&uint32(f) == 0 {
			return false
		}
		if v.flags.CompareAndSwap(old, old&^uint32(f)) {
			return true
		}
	}
}

func (v *VCPU) Parked() bool { return v.Flags()&FlagParked != 0 }
func (v *VCPU) Yielding() bool { return v.Flags()&FlagYield != 0 }

func (v *VCPU) PublishedSliceUS() int32    { return v.publishedSliceUS.Load() }
func (v *VCPU) publishSliceUS(us int32)    { v.publishedSliceUS.Store(us) }

// isCacheHot reports whether this vCPU ran recently enough that
// migrating it to another pCPU would likely cost a cold cache,
// mirroring __csched_vcpu_is_cache_hot.
func (v *VCPU) isCacheHot(now time.Time) bool {
	if v.lastRun.IsZero() {
		return false
	}
	return now.Sub(v.lastRun) < CacheHotThreshold
}
