// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "vcshed/internal/affinity"

// pickCPU chooses which pCPU vh should run on, corresponding to
// _csched_cpu_pick / csched_cpu_pick. It prefers, in order: staying
// put if the current pCPU is idle and the vcpu's cache is still
// likely warm; an idle pCPU that shares a core with the current one
// (cheapest possible migration); any other idle pCPU within
// affinity, cheapest migrateFactor first, ties broken by cycling from
// the current pCPU's idle_bias cursor so repeated picks fan out
// rather than piling onto one pCPU; and finally, if nothing is idle,
// the least-loaded pCPU within affinity.
func (s *State) pickCPU(vh VCPUHandle) int {
	v, ok := s.vcpu(vh)
	assert(ok, "pickCPU on unknown vcpu")

	s.mu.Lock()
	idle := s.idlers
	s.mu.Unlock()

	cand := affinity.Intersect(v.Affinity, affinity.All(s.NumPCPU()))
	if cand.Count() == 0 {
		cand = affinity.All(s.NumPCPU())
	}

	cur := v.Processor
	idleCand := affinity.Intersect(idle, cand)

	if idleCand.IsSet(cur) && v.isCacheHot(s.clock.Now()) {
		return cur
	}

	if idleCand.Count() > 0 {
		if siblings := affinity.Intersect(idleCand, s.topo.SiblingMask(cur)); siblings.Count() > 0 {
			idleCand = siblings
		}

		p := s.pcpus[cur]
		bestCPU, bestCost, bestDist := -1, 1<<30, 1<<30
		affinity.Range(idleCand, func(cpu int) {
			cost := s.topo.migrateFactor(cur, cpu)
			dist := cyclicDistance(p.idleBias, cpu, s.topo.NumPCPU)
			if cost < bestCost || (cost == bestCost && dist < bestDist) {
				bestCPU, bestCost, bestDist = cpu, cost, dist
			}
		})
		if bestCPU >= 0 {
			p.idleBias = bestCPU
			return bestCPU
		}
	}

	best := -1
	if cand.IsSet(cur) {
		best = cur
	}
	bestLoad := 1 << 30
	affinity.Range(cand, func(cpu int) {
		load := s.pcpus[cpu].Runnable()
		if load < bestLoad {
			bestLoad = load
			best = cpu
		}
	})
	if best < 0 {
		best = cur
	}
	return best
}

// cyclicDistance measures how far cpu is ahead of from on a ring of
// size n, used to break picker ties in round-robin order.
func cyclicDistance(from, cpu, n int) int {
	if n <= 0 {
		return 0
	}
	d := cpu - from
	if d < 0 {
		d += n
	}
	return d
}
