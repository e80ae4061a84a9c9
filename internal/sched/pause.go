// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

// Pauser is the external vCPU-pause collaborator named in §6:
// vcpu_pause_nosync / vcpu_unpause. It is out of scope per §1
// (domain/vCPU lifecycle wiring with the hypervisor core) and is
// modeled here as a narrow interface the accountant calls when a
// capped domain's vCPU drops below its floor, and again when it
// recovers. Order matters: the accountant always unpauses before
// clearing FlagParked, never the reverse, to avoid racing the
// wake-boost path against a still-suspended vCPU.
type Pauser interface {
	Pause(VCPUHandle)
	Unpause(VCPUHandle)
}

// NoopPauser is the default Pauser. This module's simulated pCPU
// execution model (§9.2) never hands a vCPU real cycles to suspend,
// so there is nothing for a production Pauser to do beyond what the
// PARKED flag and runqueue removal already express; tests that want
// to observe pause/unpause ordering install a fake via
// State.SetPauser.
type NoopPauser struct{}

func (NoopPauser) Pause(VCPUHandle)   {}
func (NoopPauser) Unpause(VCPUHandle) {}
