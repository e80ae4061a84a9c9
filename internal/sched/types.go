// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements a proportional-share, credit-based
// scheduler for mapping vCPUs onto a fixed pool of simulated pCPUs,
// together with a PMC-driven controller that adapts each domain's
// time slice to its observed execution phase.
package sched

import "time"

// DomainHandle and VCPUHandle identify domains and vCPUs across the
// control socket and the simulated pCPU loops. The zero value is
// never valid (arena generation 0 is reserved), so a zero handle
// reliably means "none".
type DomainHandle struct{ h handle }
type VCPUHandle struct{ h handle }

func (d DomainHandle) Valid() bool { return d.h.valid() }
func (v VCPUHandle) Valid() bool   { return v.h.valid() }

// Band is the scheduling priority band a vCPU occupies on a runqueue.
// Higher numeric value sorts earlier; BOOST preempts everything else.
type Band int32

const (
	BandBoost Band = 0
	BandUnder Band = -1
	BandOver  Band = -2
	BandIdle  Band = -64
)

func (b Band) String() string {
	switch b {
	case BandBoost:
		return "boost"
	case BandUnder:
		return "under"
	case BandOver:
		return "over"
	case BandIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Flags is a bitmask of per-vCPU scheduling state, mirroring
// VCPU_PARKED / VCPU_YIELD from the credit scheduler this package is
// modeled on.
type Flags uint32

const (
	FlagParked Flags = 1 << iota
	FlagYield
	// FlagMigrating mirrors VPF_migrating: set by Tick's per-vcpu
	// accounting (csched_vcpu_acct) when the picker recommends a
	// different pCPU than the one a running vcpu currently occupies.
	// The next Dispatch call for that pCPU consumes the flag and, if
	// the recommendation still holds, hands the vcpu to the
	// recommended pCPU's runqueue instead of its own.
	FlagMigrating
)

// Phase is the controller's classification of a domain's recent PMC
// behavior: spinning hard on contended locks (HighSpin) vs. making
// steady forward progress (LowSpin).
type Phase int32

const (
	PhaseLowSpin Phase = iota
	PhaseHighSpin
)

// Tunable defaults, carried over unchanged from the credit scheduler
// this package reimplements.
const (
	DefaultWeight       = 256
	TicksPerTimeslice   = 3
	DefaultTimesliceMS  = 30
	CreditsPerMS        = 1000
	DefaultTimesliceUS  = 100 // CSCHED_DEFAULT_TSLICE_US
	CreditsPerUS        = 1
	TimeApplyPeriodUS   = 3000
	MetricTickPeriodUS  = 1000
	SwitchBoundary      = 900 // SWITCH_BOUNDARY, compared directly against tslice_us
	SliceUpdateWindow   = 3
	EventTrackingWindow = 5
	ControllerAlpha     = 4
	MinTimesliceUS      = 100
	MaxTimesliceUS      = 1100
	DefaultRatelimitUS  = 1000
	// CacheHotThreshold is the default vcpu_migration_delay: a vcpu
	// that last ran within this long ago is considered cache-hot: the
	// picker (§4.3) keeps it on its current pCPU if that pCPU is idle,
	// and the work-stealing balancer (§4.4) skips it.
	CacheHotThreshold = 2000 * time.Microsecond
)
