// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protocol defines the gob-encoded request/response types
// exchanged over vcshedd's UNIX control socket, generalizing the
// single-purpose perflock Action protocol into the full set of
// scheduler operations.
package protocol

import (
	"encoding/gob"

	"github.com/google/uuid"
)

// Action wraps one of the Action* request types below for gob
// encoding, since gob needs a registered concrete type to decode into
// an interface{} field.
type Action struct {
	Action interface{}
}

type ActionInitDomain struct {
	Weight     uint16
	Privileged bool
}

type ActionDestroyDomain struct {
	Domain uuid.UUID
}

type ActionAdjustDomain struct {
	Domain uuid.UUID
	Weight uint16
	Cap    uint16
}

// ActionAdjustGlobal changes pool-wide tunables. The daemon gates
// this on the caller's peer credentials (root or the daemon's own
// uid only), the same way perflock gates SetGovernor.
type ActionAdjustGlobal struct {
	TickPeriodUS int32
	RatelimitUS  int32
}

type ActionInsertVCPU struct {
	Domain   uuid.UUID
	Affinity string // CPU-list format, e.g. "0-3"; empty means any pCPU
	Profile  string // "cpu-bound", "lock-heavy", "cache-thrashing"
}

type ActionRemoveVCPU struct {
	VCPU uuid.UUID
}

type ActionSleep struct{ VCPU uuid.UUID }
type ActionWake struct{ VCPU uuid.UUID }
type ActionYield struct{ VCPU uuid.UUID }

type ActionListDomains struct{}

type ActionDumpPCPU struct{ Index int }

// ActionDumpSettings requests the pool-wide tunable surface
// (dump_settings): the live global defaults and the bounds
// AdjustGlobal enforces.
type ActionDumpSettings struct{}

// ActionDumpAdminConf requests the pool's administrative/topology
// configuration (dump_admin_conf): boot-time parameters not settable
// through AdjustGlobal.
type ActionDumpAdminConf struct{}

// ActionAllocPCPU brings a pCPU into the pool (alloc_pdata). Gated on
// the caller's peer credentials the same way ActionAdjustGlobal is.
type ActionAllocPCPU struct{ Index int }

// ActionFreePCPU takes a pCPU out of the pool (free_pdata). Gated the
// same way ActionAllocPCPU is.
type ActionFreePCPU struct{ Index int }

// ActionTickSuspend suspends a pCPU's tick/accounting/metric work
// across a simulated power event (tick_suspend).
type ActionTickSuspend struct{ Index int }

// ActionTickResume resumes a pCPU suspended by ActionTickSuspend
// (tick_resume).
type ActionTickResume struct{ Index int }

// ActionRaiseTasklet marks a pCPU as having a pending tasklet, so its
// next do_schedule call idles it instead of dispatching a vcpu (§4.8
// step 5). Tasklet delivery plumbing itself is out of scope (§1); this
// exercises the seam the hypervisor core would drive it through.
type ActionRaiseTasklet struct{ Index int }

// DomainInfo is the wire-friendly rendering of a domain snapshot.
type DomainInfo struct {
	Domain     uuid.UUID
	Weight     uint16
	Cap        uint16
	Privileged bool
	TSliceUS   int32
	VCPUCount  int
	Phase      string
}

// PCPUInfo is the wire-friendly rendering of a pCPU snapshot.
type PCPUInfo struct {
	Index    int
	Runnable int
	Idle     bool
}

// SettingsInfo is the wire-friendly rendering of sched.Settings.
type SettingsInfo struct {
	TickPeriodUS   int32
	RatelimitUS    int32
	MinTimesliceUS int32
	MaxTimesliceUS int32
	MinRatelimitUS int32
	MaxRatelimitUS int32
}

// AdminConfInfo is the wire-friendly rendering of sched.AdminConf.
type AdminConfInfo struct {
	NumPCPU                       int
	ThreadsPerCore                int
	CoresPerSocket                int
	MasterPCPU                    int
	AsymmetricExcessCreditRemoval bool
}

// Response is the single reply envelope for every Action. Only the
// fields relevant to the request that produced it are populated.
type Response struct {
	Err string

	Domain uuid.UUID
	VCPU   uuid.UUID

	Domains []DomainInfo
	PCPU    PCPUInfo

	Settings  SettingsInfo
	AdminConf AdminConfInfo
}

func init() {
	gob.Register(ActionInitDomain{})
	gob.Register(ActionDestroyDomain{})
	gob.Register(ActionAdjustDomain{})
	gob.Register(ActionAdjustGlobal{})
	gob.Register(ActionInsertVCPU{})
	gob.Register(ActionRemoveVCPU{})
	gob.Register(ActionSleep{})
	gob.Register(ActionWake{})
	gob.Register(ActionYield{})
	gob.Register(ActionListDomains{})
	gob.Register(ActionDumpPCPU{})
	gob.Register(ActionDumpSettings{})
	gob.Register(ActionDumpAdminConf{})
	gob.Register(ActionAllocPCPU{})
	gob.Register(ActionFreePCPU{})
	gob.Register(ActionTickSuspend{})
	gob.Register(ActionTickResume{})
	gob.Register(ActionRaiseTasklet{})
}
