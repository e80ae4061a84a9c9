// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "container/list"

// loadBalance is called from do_schedule when p is about to go idle.
// p.mu must already be held by the caller (do_schedule holds its own
// pCPU's lock for the whole dispatch decision) — so unlike peerIdx,
// p.Index's own idlers bit is left for the caller to update once it
// releases p.mu, rather than updated here. It scans peer pCPUs in
// cyclic order starting just after the last pCPU it stole from, taking
// each peer's lock with TryLock only: a blocking Lock here could
// deadlock against a peer simultaneously trying to steal from p. The
// first stealable vcpu found is moved onto p's own runqueue and
// returned to the caller. Corresponds to csched_load_balance /
// csched_runq_steal.
func (s *State) loadBalance(p *PCPU) (VCPUHandle, bool) {
	n := s.NumPCPU()
	if n < 2 {
		return VCPUHandle{}, false
	}
	localBand := s.headBand(p)
	start := p.lastTickleCPU
	for i := 1; i <= n; i++ {
		peerIdx := (start + i) % n
		if peerIdx == p.Index {
			continue
		}
		peer := s.pcpus[peerIdx]
		if !peer.mu.TryLock() {
			continue
		}
		vh, ok := s.stealFrom(peer, p.Index, localBand)
		peer.mu.Unlock()
		if ok {
			p.lastTickleCPU = peerIdx
			s.runqInsert(p, vh)
			s.updateIdlers(peerIdx)
			if s.metrics != nil {
				s.metrics.StealsTotal.Inc()
			}
			return vh, true
		}
	}
	return VCPUHandle{}, false
}

// stealFrom looks for a vcpu on peer's runqueue that can be moved to
// dstCPU: the candidate must be of strictly higher priority than
// localBand (the requester's own best runnable band), must not be
// peer's currently dispatched vcpu, must not be cache-hot, and must
// be allowed to run on dstCPU. peer.mu must be held by the caller; on
// success the vcpu is already removed from peer's runqueue and its
// Processor field updated, but not yet inserted anywhere.
func (s *State) stealFrom(peer *PCPU, dstCPU int, localBand Band) (VCPUHandle, bool) {
	var victim *list.Element
	for e := peer.runq.Front(); e != nil; e = e.Next() {
		vh := e.Value.(VCPUHandle)
		if vh == peer.curr {
			continue
		}
		v, ok := s.vcpu(vh)
		if !ok {
			continue
		}
		if v.Band() <= localBand {
			continue
		}
		if !v.Affinity.IsSet(dstCPU) {
			continue
		}
		if v.isCacheHot(s.clock.Now()) {
			continue
		}
		victim = e
		break
	}
	if victim == nil {
		return VCPUHandle{}, false
	}

	vh := victim.Value.(VCPUHandle)
	v, ok := s.vcpu(vh)
	if !ok {
		return VCPUHandle{}, false
	}
	peer.runq.Remove(victim)
	peer.runnable--
	v.runqElem = nil
	v.Processor = dstCPU
	return vh, true
}
