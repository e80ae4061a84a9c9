// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleDeltaSaturatesAtZero(t *testing.T) {
	prev := Sample{Instructions: 100, Cycles: 100, CacheMisses: 10, LockCycles: 5}
	cur := Sample{Instructions: 80, Cycles: 150, CacheMisses: 20, LockCycles: 5}

	d := cur.Delta(prev)
	require.Equal(t, uint64(0), d.Instructions, "a counter reset must saturate at zero, not wrap")
	require.Equal(t, uint64(50), d.Cycles)
	require.Equal(t, uint64(10), d.CacheMisses)
	require.Equal(t, uint64(0), d.LockCycles)
}

// TestSoftwareSourceGrowsMonotonically checks that a SoftwareSource's
// cumulative counters only increase as simulated time advances, for
// every workload profile.
func TestSoftwareSourceGrowsMonotonically(t *testing.T) {
	for _, profile := range []Profile{ProfileCPUBound, ProfileLockHeavy, ProfileCacheThrashing} {
		var now uint64
		src := NewSoftwareSource(profile, func() uint64 { return now })

		first := src.Read()
		now += 1_000_000 // 1ms
		second := src.Read()

		require.GreaterOrEqual(t, second.Instructions, first.Instructions, "profile %v", profile)
		require.GreaterOrEqual(t, second.Cycles, first.Cycles, "profile %v", profile)
		require.GreaterOrEqual(t, second.CacheMisses, first.CacheMisses, "profile %v", profile)
		require.GreaterOrEqual(t, second.LockCycles, first.LockCycles, "profile %v", profile)
	}
}

func TestLockHeavyProfileAccruesMoreLockCyclesThanCPUBound(t *testing.T) {
	var now uint64
	lockHeavy := NewSoftwareSource(ProfileLockHeavy, func() uint64 { return now })
	cpuBound := NewSoftwareSource(ProfileCPUBound, func() uint64 { return now })

	now = 1_000_000
	lh := lockHeavy.Read()
	cb := cpuBound.Read()

	require.Greater(t, lh.LockCycles, cb.LockCycles)
	require.Greater(t, cb.Instructions, lh.Instructions, "a cpu-bound profile should retire instructions faster than a lock-heavy one")
}

func TestCacheThrashingProfileAccruesMoreMissesThanCPUBound(t *testing.T) {
	var now uint64
	thrash := NewSoftwareSource(ProfileCacheThrashing, func() uint64 { return now })
	cpuBound := NewSoftwareSource(ProfileCPUBound, func() uint64 { return now })

	now = 1_000_000
	th := thrash.Read()
	cb := cpuBound.Read()

	require.Greater(t, th.CacheMisses, cb.CacheMisses)
}
