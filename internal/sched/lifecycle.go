// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

// Sleep removes a vcpu from its pCPU's runqueue because it has
// blocked (e.g. waiting on an event), without destroying it.
// Corresponds to csched_vcpu_sleep.
func (s *State) Sleep(vh VCPUHandle) error {
	s.mu.Lock()
	v, ok := s.vcpu(vh)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownVCPU
	}
	cpu := v.Processor
	s.mu.Unlock()

	p := s.pcpus[cpu]
	p.mu.Lock()
	running := p.curr == vh
	if v.runqElem != nil {
		s.runqRemove(p, v)
	}
	if running {
		p.curr = VCPUHandle{}
	}
	p.mu.Unlock()

	if running {
		// Currently dispatched: raise a reschedule rather than just
		// dropping it from the runqueue, mirroring csched_vcpu_sleep's
		// cpu_raise_softirq(SCHEDULE_SOFTIRQ) branch.
		p.tickle()
	}
	s.updateIdlers(cpu)
	return nil
}

// Wake makes a sleeping vcpu runnable again. If it has non-negative
// credit, is not parked, and isn't already boosted, it is granted
// BOOST priority (how long it slept is not considered) so
// it gets a chance to run promptly rather than starving behind a
// pool of OVER-band vcpus; this mirrors the wake-boost heuristic in
// csched_vcpu_wake.
func (s *State) Wake(vh VCPUHandle) error {
	s.mu.Lock()
	v, ok := s.vcpu(vh)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownVCPU
	}
	s.mu.Unlock()

	if v.Band() != BandBoost && v.Credit() >= 0 && !v.Parked() {
		v.SetBand(BandBoost)
	}
	v.clearFlag(FlagYield)

	cpu := s.pickCPU(vh)
	v.Processor = cpu
	p := s.pcpus[cpu]

	p.mu.Lock()
	if v.runqElem == nil {
		s.runqInsert(p, vh)
	}
	p.mu.Unlock()

	s.updateIdlers(cpu)
	p.tickle()
	return nil
}

// Yield marks a vcpu as willing to give up the remainder of its
// slice. It is re-inserted at the back of the runqueue regardless of
// band the next time it is requeued (see runqInsert), and the flag is
// cleared by the Dispatch call that takes it off the pCPU (or by a
// later Wake).
func (s *State) Yield(vh VCPUHandle) error {
	s.mu.Lock()
	v, ok := s.vcpu(vh)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownVCPU
	}
	v.setFlag(FlagYield)
	return nil
}

// RaiseTasklet marks cpu as having a pending hypervisor tasklet: the
// next Dispatch call for that pCPU observes it and, per §4.8 step 5,
// idles the pCPU instead of dispatching a vcpu so the tasklet can run.
func (s *State) RaiseTasklet(cpu int) {
	s.pcpus[cpu].raiseTasklet()
}
