// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"vcshed/internal/pmc"
	"vcshed/internal/simclock"
)

// newTestScheduler builds a flat-topology, n-pCPU State driven by a
// Manual clock, so tests can advance accounting/controller/tick
// cadences deterministically without real sleeps.
func newTestScheduler(n int) (*State, *simclock.Manual) {
	clk := simclock.NewManual()
	topo := NewFlatTopology(n)
	pool := NewPool(n)
	st := NewState(topo, pool, clk, DefaultAccountantConfig())
	return st, clk
}

// testSource returns a synthetic PMC source driven by clk, so
// controller tests can advance wall time and observe counter growth
// without depending on real elapsed time.
func testSource(clk *simclock.Manual, profile pmc.Profile) pmc.Source {
	return pmc.NewSoftwareSource(profile, func() uint64 {
		return uint64(clk.Now().UnixNano())
	})
}
