// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "vcshed/internal/affinity"

// Topology describes how simulated pCPU indices group into cores and
// sockets, so the picker (§4.3) can prefer an idle thread sibling
// over a cross-socket pCPU the same way _csched_cpu_pick does.
type Topology struct {
	NumPCPU       int
	ThreadsPerCore int
	CoresPerSocket int
}

// NewFlatTopology returns a Topology with n independent pCPUs, one
// per core, one core per socket: every pick is cross-socket. Useful
// for tests that don't care about topology affinity.
func NewFlatTopology(n int) *Topology {
	return &Topology{NumPCPU: n, ThreadsPerCore: 1, CoresPerSocket: 1}
}

func (t *Topology) coreOf(cpu int) int {
	return cpu / t.ThreadsPerCore
}

func (t *Topology) socketOf(cpu int) int {
	return t.coreOf(cpu) / t.CoresPerSocket
}

// SiblingMask returns every pCPU sharing a core with cpu, cpu
// included.
func (t *Topology) SiblingMask(cpu int) affinity.Set {
	var s affinity.Set
	core := t.coreOf(cpu)
	for i := 0; i < t.NumPCPU; i++ {
		if t.coreOf(i) == core {
			s.Set(i)
		}
	}
	return s
}

// CoreMask returns every pCPU sharing a socket with cpu, cpu
// included.
func (t *Topology) CoreMask(cpu int) affinity.Set {
	var s affinity.Set
	sock := t.socketOf(cpu)
	for i := 0; i < t.NumPCPU; i++ {
		if t.socketOf(i) == sock {
			s.Set(i)
		}
	}
	return s
}

// migrateFactor returns the relative cost of migrating a vCPU from
// cpu to dst: 1 for a same-socket move, 2 for a cross-socket one,
// mirroring original_source's CSCHED_MIGRATE_FACTOR weighting between
// balancing aggressiveness and cache locality.
func (t *Topology) migrateFactor(cpu, dst int) int {
	if t.socketOf(cpu) == t.socketOf(dst) {
		return 1
	}
	return 2
}
