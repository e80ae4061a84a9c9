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

// TestRunqueueBandOrdering checks invariant 2: a pCPU's runqueue is
// sorted in non-increasing priority (BOOST, UNDER, OVER, IDLE).
func TestRunqueueBandOrdering(t *testing.T) {
	st, clk := newTestScheduler(1)
	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)

	src := testSource(clk, pmc.ProfileCPUBound)
	over, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	boost, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	under, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	vOver, _ := st.vcpu(over)
	vBoost, _ := st.vcpu(boost)
	vUnder, _ := st.vcpu(under)
	vOver.SetBand(BandOver)
	vBoost.SetBand(BandBoost)
	vUnder.SetBand(BandUnder)

	p := st.PCPU(0)
	p.mu.Lock()
	st.runqSort(p)
	var order []VCPUHandle
	for e := p.runq.Front(); e != nil; e = e.Next() {
		order = append(order, e.Value.(VCPUHandle))
	}
	p.mu.Unlock()

	require.Equal(t, []VCPUHandle{boost, under, over}, order)
}

// TestRunqueueYieldAlwaysBack checks the one exception to band
// ordering: a yielding vCPU always re-enqueues at the back of the
// runqueue regardless of its band.
func TestRunqueueYieldAlwaysBack(t *testing.T) {
	st, clk := newTestScheduler(1)
	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)

	src := testSource(clk, pmc.ProfileCPUBound)
	boosted, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	other, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	vBoosted, _ := st.vcpu(boosted)
	vBoosted.SetBand(BandBoost)
	vBoosted.setFlag(FlagYield)

	p := st.PCPU(0)
	p.mu.Lock()
	// Re-home the boosted vcpu through the normal insert path so the
	// yield exception in runqInsert is what decides placement, not
	// runqSort.
	st.runqRemove(p, vBoosted)
	st.runqInsert(p, boosted)
	var order []VCPUHandle
	for e := p.runq.Front(); e != nil; e = e.Next() {
		order = append(order, e.Value.(VCPUHandle))
	}
	p.mu.Unlock()

	require.Equal(t, []VCPUHandle{other, boosted}, order)
}
