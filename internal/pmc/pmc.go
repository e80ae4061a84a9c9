// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pmc abstracts the per-vCPU performance-monitoring-counter
// reads that drive the adaptive time-slice controller. There is no
// real hardware underneath this simulation, so Source is backed by a
// synthetic generator keyed by a workload profile rather than
// perf_event_open; the interface is shaped so a hardware-backed
// Source could be dropped in later without touching internal/sched.
package pmc

// Sample is a snapshot of the four raw counters the controller
// reasons about: retired instructions, cycles, cache misses and
// lock-wait cycles. Only deltas between consecutive samples are
// meaningful.
type Sample struct {
	Instructions uint64
	Cycles       uint64
	CacheMisses  uint64
	LockCycles   uint64
}

// Delta returns s-prev component-wise, saturating at zero instead of
// wrapping on counter resets.
func (s Sample) Delta(prev Sample) Sample {
	return Sample{
		Instructions: subSat(s.Instructions, prev.Instructions),
		Cycles:       subSat(s.Cycles, prev.Cycles),
		CacheMisses:  subSat(s.CacheMisses, prev.CacheMisses),
		LockCycles:   subSat(s.LockCycles, prev.LockCycles),
	}
}

func subSat(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// Source reads the current cumulative counters for one vCPU. Reads
// must be cheap: the scheduler's metric pass calls Read for every
// active vCPU on each metric tick.
type Source interface {
	Read() Sample
}

// Profile names a synthetic workload shape for SoftwareSource.
type Profile int

const (
	// ProfileCPUBound retires instructions at a steady high rate with
	// few cache misses and negligible lock contention.
	ProfileCPUBound Profile = iota
	// ProfileLockHeavy spends a large share of cycles blocked on
	// contended locks, driving submilli latency up.
	ProfileLockHeavy
	// ProfileCacheThrashing retires instructions slowly due to a high
	// cache-miss rate, without meaningful lock contention.
	ProfileCacheThrashing
)

// Rates holds the per-nanosecond accrual rates a SoftwareSource uses
// to synthesize counter growth. They are deliberately simple linear
// rates; the controller under test cares about the resulting submilli
// metric, not about modeling a real microarchitecture.
type Rates struct {
	InstructionsPerNS float64
	CyclesPerNS       float64
	CacheMissPerNS    float64
	LockCyclesPerNS   float64
}

func ratesFor(p Profile) Rates {
	switch p {
	case ProfileLockHeavy:
		return Rates{InstructionsPerNS: 0.4, CyclesPerNS: 1.0, CacheMissPerNS: 0.0005, LockCyclesPerNS: 0.55}
	case ProfileCacheThrashing:
		return Rates{InstructionsPerNS: 0.3, CyclesPerNS: 1.0, CacheMissPerNS: 0.02, LockCyclesPerNS: 0.01}
	default: // ProfileCPUBound
		return Rates{InstructionsPerNS: 2.2, CyclesPerNS: 1.0, CacheMissPerNS: 0.0002, LockCyclesPerNS: 0.0}
	}
}

// Now abstracts the time source SoftwareSource uses to accrue
// counters, so tests can drive it without a real clock.
type Now func() uint64

// SoftwareSource synthesizes Sample growth for one vCPU according to
// a fixed Profile. It is the harness that exercises internal/sched's
// controller in tests and in the simulated pCPU execution loop; it is
// not a stand-in for a hardware PMC driver.
type SoftwareSource struct {
	rates Rates
	now   Now
	base  uint64
}

// NewSoftwareSource returns a Source that grows its counters according
// to profile, using now (nanoseconds, monotonic) to drive growth.
func NewSoftwareSource(profile Profile, now Now) *SoftwareSource {
	return &SoftwareSource{rates: ratesFor(profile), now: now, base: now()}
}

func (s *SoftwareSource) Read() Sample {
	elapsed := float64(s.now() - s.base)
	return Sample{
		Instructions: uint64(elapsed * s.rates.InstructionsPerNS),
		Cycles:       uint64(elapsed * s.rates.CyclesPerNS),
		CacheMisses:  uint64(elapsed * s.rates.CacheMissPerNS),
		LockCycles:   uint64(elapsed * s.rates.LockCyclesPerNS),
	}
}
