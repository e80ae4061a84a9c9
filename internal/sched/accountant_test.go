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

// TestAcctProportionalShare is Scenario 1 from the design this package
// follows: two single-vcpu domains weighted 256 and 768 (a 1:3 ratio)
// share one pCPU's credit pool. Every accounting pass must grant
// credit in exactly that ratio. Credit is reset before each pass so
// that the grant itself is measured: left to accumulate, credit above
// CreditsPerSlice is halved by Acct and the ratio would not survive.
func TestAcctProportionalShare(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dhA, err := st.InitDomain(256, false)
	require.NoError(t, err)
	dhB, err := st.InitDomain(768, false)
	require.NoError(t, err)

	vA, err := st.InsertVCPU(dhA, affinity.Set{}, src)
	require.NoError(t, err)
	vB, err := st.InsertVCPU(dhB, affinity.Set{}, src)
	require.NoError(t, err)

	va, _ := st.vcpu(vA)
	vb, _ := st.vcpu(vB)

	const periods = 50
	for i := 0; i < periods; i++ {
		va.SetCredit(0)
		vb.SetCredit(0)
		st.Acct()
		require.Equal(t, va.Credit()*3, vb.Credit(), "period %d: domain B must hold exactly 3x domain A's credit", i)
	}

	require.Equal(t, int32(25), va.Credit())
	require.Equal(t, int32(75), vb.Credit())
}

// TestAcctCapBoundsCredit is Scenario 2: a capped domain never
// receives more than its cap's worth of credit in a single
// accounting pass, even though the uncapped fair share would have
// been larger.
func TestAcctCapBoundsCredit(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	require.NoError(t, st.AdjustDomain(dh, 0, 50)) // cap = 50%

	vh, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	v, _ := st.vcpu(vh)

	st.Acct()

	require.Equal(t, int32(50), v.Credit(), "a 50%% cap on the pool's only domain must grant exactly 50 credits, half of credits_per_slice")
	require.Equal(t, BandUnder, v.Band())
	require.False(t, v.Parked())
}

// TestAcctClampsDeeplyNegativeCredit checks invariant 5: after a
// master accounting pass, no vcpu's credit is left below
// -CreditsPerSlice, regardless of how negative it was before the
// pass.
func TestAcctClampsDeeplyNegativeCredit(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	vh, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	v, _ := st.vcpu(vh)
	v.SetCredit(-5000)

	st.Acct()

	require.Equal(t, -int32(CreditsPerSlice), v.Credit())
	require.Equal(t, BandOver, v.Band())
}

// TestAcctParksOverCapVCPU checks that a capped domain's vcpu is
// parked once it falls far enough below its per-vcpu cap floor, and
// that the installed Pauser observes the pause.
func TestAcctParksOverCapVCPU(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	paused := map[VCPUHandle]bool{}
	st.SetPauser(fakePauser{paused: paused})

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	require.NoError(t, st.AdjustDomain(dh, 0, 10)) // cap = 10%

	vh, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	v, _ := st.vcpu(vh)
	// creditCapPerVCPU for a 10% cap is ceil(10*100/100) = 10; put the
	// vcpu far enough below -10 that this pass's grant still leaves it
	// under the floor.
	v.SetCredit(-500)

	st.Acct()

	require.True(t, v.Parked())
	require.Equal(t, BandIdle, v.Band())
	require.True(t, paused[vh])
}

type fakePauser struct {
	paused map[VCPUHandle]bool
}

func (f fakePauser) Pause(vh VCPUHandle)   { f.paused[vh] = true }
func (f fakePauser) Unpause(vh VCPUHandle) { f.paused[vh] = false }
