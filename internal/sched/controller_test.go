// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestControllerConvergesAndIsIdempotent is Scenario 6: fed the same
// PMC deltas every metric tick (a steady workload phase), the
// controller's classification and chosen time slice must converge to
// a fixed point and then stop changing, rather than oscillating
// forever.
func TestControllerConvergesAndIsIdempotent(t *testing.T) {
	d := &Domain{}
	initDomain(d, DomainHandle{}, DefaultWeight, false)

	const instRetired, cacheMisses = uint64(100000), uint64(50)

	// Drive the warm-up window (EventTrackingWindow calls) plus enough
	// extra steady calls to let decreaseTimeSlice walk tslice_us down
	// to its floor.
	for i := 0; i < EventTrackingWindow+40; i++ {
		submilliMetricUpdate(d, instRetired, cacheMisses)
		require.GreaterOrEqual(t, d.TSliceUS(), int32(MinTimesliceUS))
		require.LessOrEqual(t, d.TSliceUS(), int32(MaxTimesliceUS))
	}

	require.Equal(t, int32(MinTimesliceUS), d.TSliceUS(), "a steady miss rate under the stability threshold must drive tslice_us to its floor")
	require.Equal(t, PhaseHighSpin, d.phase)

	before := d.TSliceUS()
	beforePhase := d.phase
	for i := 0; i < 10; i++ {
		submilliMetricUpdate(d, instRetired, cacheMisses)
	}
	require.Equal(t, before, d.TSliceUS(), "once converged, further identical samples must not change tslice_us")
	require.Equal(t, beforePhase, d.phase)
}

// TestEventWindowShiftPreservesOrder checks that the rolling filter
// window drops the oldest sample and appends the newest at the back.
func TestEventWindowShiftPreservesOrder(t *testing.T) {
	d := &Domain{}
	initDomain(d, DomainHandle{}, DefaultWeight, false)

	for i := uint64(0); i < EventTrackingWindow; i++ {
		d.filter[i] = filterEntry{instRetired: i}
	}

	eventWindowShift(d, 0, 999, 1)

	for i := 0; i < EventTrackingWindow-1; i++ {
		require.Equal(t, uint64(i+1), d.filter[i].instRetired)
	}
	require.Equal(t, uint64(999), d.filter[EventTrackingWindow-1].instRetired)
}
