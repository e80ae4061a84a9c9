// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"container/list"
	"sort"
)

// runqInsert adds vh to p's runqueue in descending-priority order
// (BOOST, then UNDER, then OVER, then IDLE; ties broken FIFO), unless
// vh is yielding, in which case it always goes to the back regardless
// of band. p.mu must be held by the caller.
func (s *State) runqInsert(p *PCPU, vh VCPUHandle) {
	v, ok := s.vcpu(vh)
	assert(ok, "runqInsert on unknown vcpu %v", vh)

	p.runnable++

	if v.Yielding() {
		v.runqElem = p.runq.PushBack(vh)
		return
	}

	band := v.Band()
	for e := p.runq.Front(); e != nil; e = e.Next() {
		ov, ok := s.vcpu(e.Value.(VCPUHandle))
		if !ok {
			continue
		}
		if ov.Band() < band {
			v.runqElem = p.runq.InsertBefore(vh, e)
			return
		}
	}
	v.runqElem = p.runq.PushBack(vh)
}

// runqRemove detaches v from p's runqueue. p.mu must be held.
func (s *State) runqRemove(p *PCPU, v *VCPU) {
	assert(v.runqElem != nil, "runqRemove on vcpu not enqueued")
	p.runq.Remove(v.runqElem)
	v.runqElem = nil
	p.runnable--
}

// runqSort rebuilds p's runqueue in descending-band order, stable
// within a band. The per-vcpu band can change out from under the
// runqueue (the master accountant updates it without touching any
// pCPU's list), so a dispatch-time in-place insert alone would let a
// demoted vcpu linger ahead of a freshly boosted one until it is next
// removed and reinserted; a periodic sort (driven by the tick path,
// §4.5) is what original_source's csched_runq_sort achieves with its
// last_under cursor. p.mu must be held.
func (s *State) runqSort(p *PCPU) {
	n := p.runq.Len()
	if n < 2 {
		return
	}
	handles := make([]VCPUHandle, 0, n)
	for e := p.runq.Front(); e != nil; e = e.Next() {
		handles = append(handles, e.Value.(VCPUHandle))
	}
	sort.SliceStable(handles, func(i, j int) bool {
		vi, _ := s.vcpu(handles[i])
		vj, _ := s.vcpu(handles[j])
		return vi.Band() > vj.Band()
	})

	p.runq = list.New()
	for _, vh := range handles {
		v, ok := s.vcpu(vh)
		if !ok {
			p.runnable--
			continue
		}
		v.runqElem = p.runq.PushBack(vh)
	}
}

// runqPeek returns the head of p's runqueue without removing it.
func runqPeek(p *PCPU) (VCPUHandle, bool) {
	e := p.runq.Front()
	if e == nil {
		return VCPUHandle{}, false
	}
	return e.Value.(VCPUHandle), true
}
