// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vcshed/internal/affinity"
	"vcshed/internal/pmc"
)

// TestLoadBalanceSteals is Scenario 4: an idle pCPU steals a runnable
// vcpu from a peer that has more than one waiting, rather than
// sitting idle.
func TestLoadBalanceSteals(t *testing.T) {
	st, clk := newTestScheduler(2)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	v1, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	v2, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	p0 := st.PCPU(0)
	p1 := st.PCPU(1)

	// Force both vcpus onto pCPU 0's runqueue regardless of where the
	// picker originally placed them, so this test exercises loadBalance
	// in isolation from pickCPU's own policy.
	for _, vh := range []VCPUHandle{v1, v2} {
		v, ok := st.vcpu(vh)
		require.True(t, ok)
		if v.Processor == 0 {
			continue
		}
		donor := st.pcpus[v.Processor]
		donor.mu.Lock()
		if v.runqElem != nil {
			st.runqRemove(donor, v)
		}
		donor.mu.Unlock()
		v.Processor = 0
		p0.mu.Lock()
		st.runqInsert(p0, vh)
		p0.mu.Unlock()
	}

	require.Equal(t, 2, p0.Runnable())
	require.Equal(t, 0, p1.Runnable())

	p1.mu.Lock()
	st.loadBalance(p1)
	p1.mu.Unlock()

	require.Equal(t, 1, p0.Runnable(), "the donor pCPU must keep at least one runnable vcpu")
	require.Equal(t, 1, p1.Runnable(), "the stealing pCPU must have gained exactly one")
}

// TestLoadBalanceStealsLastWaitingVCPU checks that stealFrom will take
// a peer's only runnable vcpu as long as it isn't the peer's currently
// dispatched one: csched_runq_steal (original_source) excludes only
// priority, "not currently running", cache-hot, and affinity — it has
// no floor on how many vcpus the peer is left with.
func TestLoadBalanceStealsLastWaitingVCPU(t *testing.T) {
	st, clk := newTestScheduler(2)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	vh, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	p0 := st.PCPU(0)
	p1 := st.PCPU(1)

	// Force the vcpu onto pCPU 0's runqueue regardless of where the
	// picker originally placed it, so placement is deterministic.
	v, ok := st.vcpu(vh)
	require.True(t, ok)
	if v.Processor != 0 {
		donor := st.pcpus[v.Processor]
		donor.mu.Lock()
		if v.runqElem != nil {
			st.runqRemove(donor, v)
		}
		donor.mu.Unlock()
		v.Processor = 0
		p0.mu.Lock()
		st.runqInsert(p0, vh)
		p0.mu.Unlock()
	}
	require.Equal(t, 1, p0.Runnable())

	p1.mu.Lock()
	st.loadBalance(p1)
	p1.mu.Unlock()

	require.Equal(t, 0, p0.Runnable(), "the peer's only waiting vcpu must be stealable")
	require.Equal(t, 1, p1.Runnable())
}
