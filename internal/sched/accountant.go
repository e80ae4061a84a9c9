// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

// CreditsPerSlice is the "credits_per_slice" constant named throughout
// §4.6/§8: the credit quantum one pCPU contributes to the pool each
// accounting period, and the unit against which a domain's cap is
// expressed. It is pinned to DefaultTimesliceUS so the scenario in
// §8.2 (credits_per_slice=100) holds by construction.
const CreditsPerSlice = int32(DefaultTimesliceUS) * CreditsPerUS

// ceilDiv computes ceil(a/b) for positive a and b, and returns 0 when
// either is zero or negative, matching the
// "+(denominator-1)" idiom original_source uses throughout csched_acct
// to round accounting divisions up rather than truncating credit away.
func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Acct runs one pass of the master credit accountant, corresponding to
// csched_acct: it computes this period's credit pool, divides it among
// active domains proportionally to weight×active_vcpu_count (honoring
// any cap), redistributes a domain's unused surplus to the domains
// still waiting their turn this same pass, and finally credits each
// active vCPU its per-vcpu share, reclassifying band and PARKED state
// from the result. Must only be invoked on the elected master pCPU
// (see pcpuLoop in pcpu_loop.go).
func (s *State) Acct() {
	s.mu.Lock()
	defer s.mu.Unlock()

	weightTotal := int64(s.weightTotal)

	creditTotal := int64(len(s.pcpus)) * int64(CreditsPerSlice)
	if s.creditBalance < 0 {
		creditTotal += -s.creditBalance
	}

	if weightTotal == 0 {
		s.creditBalance = 0
		return
	}

	weightLeft := weightTotal
	var creditedTotal int64

	for e := s.activeDomains.Front(); e != nil; {
		next := e.Next()
		dh := e.Value.(DomainHandle)
		d, ok := s.domain(dh)
		if !ok {
			e = next
			continue
		}
		n := int64(d.active.Len())
		if n == 0 {
			e = next
			continue
		}
		weight := int64(d.Weight)

		weightLeft -= weight * n

		// A domain's fair share is its proportion of the total weight
		// times the pool, but is bounded above by credit_peak (one
		// credits_per_slice per active vcpu, clipped further by any
		// cap) so that a lightly-loaded pool doesn't let a domain bank
		// an unbounded head start during dark periods where weightLeft
		// is still large.
		creditPeak := n * int64(CreditsPerSlice)
		if s.creditBalance < 0 {
			creditPeak += ceilDiv(-s.creditBalance*weight*n, weightTotal)
		}

		var creditCapPerVCPU int64
		capped := d.Cap != 0
		if capped {
			creditCap := ceilDiv(int64(d.Cap)*int64(CreditsPerSlice), 100)
			if creditCap < creditPeak {
				creditPeak = creditCap
			}
			creditCapPerVCPU = ceilDiv(creditCap, n)
		}

		creditFair := ceilDiv(creditTotal*weight*n, weightTotal)

		if creditFair < creditPeak {
			// This domain wants more than its strict fair share would
			// give it (because credit_peak is itself capped, or
			// because warm-up hasn't yet spread weightLeft thin); move
			// it to the head of active_sdom so a later pass, once
			// weightLeft has shrunk further, revisits it before
			// domains that already took their full share this time.
			s.activeDomains.MoveToFront(e)
		} else {
			if weightLeft > 0 {
				creditTotal += ceilDiv((creditFair-creditPeak)*weightTotal, weightLeft)
			}
			creditFair = creditPeak
		}

		perVCPU := ceilDiv(creditFair, n)

		for ve := d.active.Front(); ve != nil; {
			vnext := ve.Next()
			vh := ve.Value.(VCPUHandle)
			v, ok := s.vcpu(vh)
			if !ok {
				ve = vnext
				continue
			}

			credit := v.AddCredit(int32(perVCPU))
			creditedTotal += perVCPU

			if credit < 0 {
				v.SetBand(BandOver)

				if capped && int64(credit) < -creditCapPerVCPU && !v.Parked() {
					v.setFlag(FlagParked)
					s.pauser.Pause(vh)
					v.SetBand(BandIdle)
				}
				if credit < -int32(CreditsPerSlice) {
					v.SetCredit(-int32(CreditsPerSlice))
				}
			} else {
				v.SetBand(BandUnder)

				if v.Parked() {
					s.pauser.Unpause(vh)
					v.clearFlag(FlagParked)
				}

				if credit > int32(CreditsPerSlice) {
					if s.cfg.AsymmetricExcessCreditRemoval && d.Privileged && d.active.Len() >= 2 {
						v.SetCredit(0)
						s.leaveActive(d, ve)
						v.activeElem = nil
					} else {
						v.SetCredit(credit / 2)
					}
				}
			}

			ve = vnext
		}

		e = next
	}

	s.creditBalance = creditedTotal
}

// pickMaster returns the current accounting master pCPU, or -1 if
// there is none. The election itself happens in AllocPCPU and
// FreePCPU.
func (s *State) pickMaster() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

func (s *State) setMaster(cpu int) {
	s.mu.Lock()
	s.master = cpu
	s.mu.Unlock()
}
