// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"strconv"
	"time"
)

// Tick runs the per-pCPU accounting tick: it demotes a BOOSTed running
// vcpu back to UNDER, burns its credits and reclassifies its band,
// picks up any runqueue resort the master accountant requested, and
// wakes the dispatch loop so it can re-evaluate. Once p.mu is
// released it also runs the running vcpu's active-list bookkeeping
// and migration check. Corresponds to csched_tick / csched_vcpu_acct.
func (s *State) Tick(cpu int) {
	p := s.pcpus[cpu]
	now := s.clock.Now()

	p.mu.Lock()
	var v *VCPU
	if p.curr.Valid() {
		if vv, ok := s.vcpu(p.curr); ok {
			v = vv
			// BOOST is granted once on wake to get a prompt chance to
			// run; once it has run long enough to reach a tick, that
			// purpose is served, so it demotes back to UNDER before
			// credits are burned and the band re-derived from them.
			if v.Band() == BandBoost {
				v.SetBand(BandUnder)
			}
			burnCredits(v, now)
			v.SetBand(classifyBand(v))
		}
	} else if s.metrics != nil {
		elapsed := time.Duration(s.tickPeriodUS.Load()) * time.Microsecond
		s.metrics.IdleSeconds.WithLabelValues(strconv.Itoa(cpu)).Add(elapsed.Seconds())
	}
	epoch := s.runqSortEpoch.Load()
	if p.runqSortEpoch != epoch {
		s.runqSort(p)
		p.runqSortEpoch = epoch
	}
	p.mu.Unlock()

	if v != nil {
		s.tickActiveVCPU(p, v)
	}

	p.tickle()
}

// tickActiveVCPU implements the second half of csched_vcpu_acct for
// the vcpu found running at tick time: if the privileged excess-
// credit path (see Acct in accountant.go) had dropped it from its
// domain's active-vcpu list, rejoin it so it resumes earning credit;
// otherwise ask the picker whether it would rather run elsewhere and,
// if so, flag it for migration at its next Dispatch. p.mu must not be
// held by the caller: both the active-list join and the picker
// briefly take Priv's lock, which must never nest inside a pCPU lock.
func (s *State) tickActiveVCPU(p *PCPU, v *VCPU) {
	s.mu.Lock()
	inactive := v.activeElem == nil
	if inactive {
		if d, ok := s.domain(v.Domain); ok {
			s.joinActive(d, v.Domain, v.Self)
		}
	}
	s.mu.Unlock()
	if inactive {
		return
	}

	if s.pickCPU(v.Self) != v.Processor {
		v.setFlag(FlagMigrating)
		p.tickle()
	}
}

// AccountingPass runs the master credit accountant and bumps the
// pool-wide runqueue-sort epoch so every other pCPU picks up the new
// band assignments at its next Tick. Must only be invoked by the
// elected master pCPU (see pcpuLoop in pcpu_loop.go).
func (s *State) AccountingPass() {
	s.Acct()
	s.runqSortEpoch.Add(1)
	if s.metrics != nil {
		s.metrics.AccountingRuns.Inc()
	}
}

// MetricPass runs the PMC-driven controller for every active domain.
// Like AccountingPass, this is master-pCPU-only work.
func (s *State) MetricPass() {
	s.domainMetricUpdate()
}
