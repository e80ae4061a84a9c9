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

// TestWeightTotalInvariant checks invariant 4: Priv.weight always
// equals the sum, over every domain, of weight * active vCPU count,
// and that a domain only belongs to active_sdom while it has at least
// one active vCPU (invariant 3).
func TestWeightTotalInvariant(t *testing.T) {
	st, clk := newTestScheduler(2)
	src := testSource(clk, pmc.ProfileCPUBound)

	dhA, err := st.InitDomain(256, false)
	require.NoError(t, err)
	dhB, err := st.InitDomain(768, false)
	require.NoError(t, err)

	require.Equal(t, uint32(0), st.weightTotal, "a domain with no vcpus must not count toward weightTotal")
	require.Equal(t, 0, st.activeDomains.Len())

	vA1, err := st.InsertVCPU(dhA, affinity.Set{}, src)
	require.NoError(t, err)
	require.Equal(t, uint32(256), st.weightTotal)
	require.Equal(t, 1, st.activeDomains.Len())

	vA2, err := st.InsertVCPU(dhA, affinity.Set{}, src)
	require.NoError(t, err)
	require.Equal(t, uint32(512), st.weightTotal)
	require.Equal(t, 1, st.activeDomains.Len(), "a second vcpu under an already-active domain must not add a second active_sdom entry")

	vB1, err := st.InsertVCPU(dhB, affinity.Set{}, src)
	require.NoError(t, err)
	require.Equal(t, uint32(512+768), st.weightTotal)
	require.Equal(t, 2, st.activeDomains.Len())

	require.NoError(t, st.RemoveVCPU(vA1))
	require.Equal(t, uint32(256+768), st.weightTotal)
	require.Equal(t, 2, st.activeDomains.Len(), "domain A still has one active vcpu left")

	require.NoError(t, st.RemoveVCPU(vA2))
	require.Equal(t, uint32(768), st.weightTotal)
	require.Equal(t, 1, st.activeDomains.Len(), "domain A must leave active_sdom once its last vcpu is removed")

	require.NoError(t, st.RemoveVCPU(vB1))
	require.Equal(t, uint32(0), st.weightTotal)
	require.Equal(t, 0, st.activeDomains.Len())

	require.NoError(t, st.DestroyDomain(dhA))
	require.NoError(t, st.DestroyDomain(dhB))
}

// TestAdjustDomainWeightRescalesTotal checks that changing a domain's
// weight while it has active vcpus keeps weightTotal consistent
// without requiring the caller to remove and reinsert any vcpu.
func TestAdjustDomainWeightRescalesTotal(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	_, err = st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	_, err = st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	require.Equal(t, uint32(512), st.weightTotal)

	require.NoError(t, st.AdjustDomain(dh, 1000, 0))
	require.Equal(t, uint32(2000), st.weightTotal)
}

// TestParkedVCPUNotOnRunqueue checks the bookkeeping behind invariant
// 6 (a PARKED vcpu is not on a runqueue): once a vcpu is flagged
// PARKED and taken off its runqueue, Parked reports it and it holds
// no runqueue element.
func TestParkedVCPUNotOnRunqueue(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, true)
	require.NoError(t, err)
	_ = dh

	vh, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	v, ok := st.vcpu(vh)
	require.True(t, ok)
	v.setFlag(FlagParked)

	p := st.PCPU(0)
	p.mu.Lock()
	if v.runqElem != nil {
		st.runqRemove(p, v)
	}
	p.mu.Unlock()

	require.True(t, v.Parked())
	require.Nil(t, v.runqElem)
}
