// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vcshed/internal/affinity"
	"vcshed/internal/pmc"
)

// TestScenario1TwoDomainProportionalShare is spec §8 scenario 1,
// driven through the same calls the pCPU loop actually makes rather
// than through Acct alone: two single-vcpu, CPU-bound domains weighted
// 256 and 512 share one pCPU for 100 accounting periods, alternating
// Dispatch (which burns credit and reclassifies band) with Acct
// (which replenishes it). TestAcctProportionalShare already pins the
// credit arithmetic exactly; this test instead measures the wall-clock
// time each domain's vcpu was actually handed by Dispatch, which is
// the only way the round-robin/reinsert behaviour of do_schedule
// itself is exercised.
func TestScenario1TwoDomainProportionalShare(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dhA, err := st.InitDomain(256, false)
	require.NoError(t, err)
	dhB, err := st.InitDomain(512, false)
	require.NoError(t, err)

	vhA, err := st.InsertVCPU(dhA, affinity.Set{}, src)
	require.NoError(t, err)
	vhB, err := st.InsertVCPU(dhB, affinity.Set{}, src)
	require.NoError(t, err)

	var ranA, ranB time.Duration

	const periods = 100
	for i := 0; i < periods; i++ {
		dec := st.Dispatch(0, false)
		require.False(t, dec.Idle, "period %d: pcpu must never go idle with two runnable vcpus", i)

		slice := time.Duration(dec.SliceUS) * time.Microsecond
		switch dec.Next {
		case vhA:
			ranA += slice
		case vhB:
			ranB += slice
		default:
			t.Fatalf("period %d: dispatch returned neither known vcpu", i)
		}
		clk.Advance(slice)
		st.Acct()
	}

	require.Greater(t, ranA, time.Duration(0))
	require.Greater(t, ranB, time.Duration(0))

	ratio := float64(ranB) / float64(ranA)
	require.InDelta(t, 2.0, ratio, 0.25, "domain B (w=512) must receive ~2x domain A's (w=256) actual dispatched time")
}

// TestScenario3WakeBoostRevertsAfterTick is spec §8 scenario 3, driven
// through Dispatch and Tick rather than by poking Band directly: a
// vcpu woken with non-negative credit is dispatched promptly on BOOST
// priority, and Tick demotes it back to UNDER once it has actually run
// long enough to reach an accounting tick, per §4.5's
// csched_vcpu_acct (the behaviour whose absence review item 4 flagged).
func TestScenario3WakeBoostRevertsAfterTick(t *testing.T) {
	st, clk := newTestScheduler(1)
	src := testSource(clk, pmc.ProfileCPUBound)

	dh, err := st.InitDomain(256, false)
	require.NoError(t, err)
	vUnder, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)
	vWoken, err := st.InsertVCPU(dh, affinity.Set{}, src)
	require.NoError(t, err)

	// Get vUnder running on the one pCPU so the pool isn't idle, then
	// put vWoken to sleep and back to establish the BOOST grant.
	dec := st.Dispatch(0, false)
	require.Equal(t, vUnder, dec.Next)

	require.NoError(t, st.Sleep(vWoken))
	require.NoError(t, st.Wake(vWoken))

	vw, _ := st.vcpu(vWoken)
	require.Equal(t, BandBoost, vw.Band())

	// The ratelimit protects whatever is currently running regardless
	// of a waiting vcpu's band (matching original_source's
	// unconditional ratelimit check in csched_schedule), so "next
	// dispatch" per spec means the next do_schedule once that window
	// has actually elapsed, not an immediate preemption.
	clk.Advance(time.Duration(DefaultRatelimitUS) * time.Microsecond)

	dec = st.Dispatch(0, false)
	require.Equal(t, vWoken, dec.Next, "a BOOSTed vcpu must preempt an UNDER vcpu once the ratelimit window allows a redispatch")

	st.Tick(0)
	require.Equal(t, BandUnder, vw.Band(), "BOOST must demote to UNDER once the vcpu has run through an accounting tick")
}
