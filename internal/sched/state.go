// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"vcshed/internal/affinity"
	"vcshed/internal/metrics"
	"vcshed/internal/pmc"
	"vcshed/internal/simclock"
)

const (
	MinWeight = 1
	MaxWeight = 65535
	MaxCap    = 100

	MinRatelimitUS = 100
	MaxRatelimitUS = 500000
)

// AccountantConfig resolves the open questions in the design this
// package follows: whether excess-credit removal at csched_acct's
// upper-bound clamp applies symmetrically to every domain or only to
// privileged ones.
type AccountantConfig struct {
	// AsymmetricExcessCreditRemoval, when true (the default), only
	// zeroes a vCPU's credit outright at the upper bound for
	// privileged domains that still have at least two active vCPUs,
	// and also drops that vCPU from its domain's active list; every
	// other vCPU over the bound has its credit halved, same as
	// original_source's domain_id==0 special case generalized to the
	// Privileged flag.
	AsymmetricExcessCreditRemoval bool
}

func DefaultAccountantConfig() AccountantConfig {
	return AccountantConfig{AsymmetricExcessCreditRemoval: true}
}

// Pool is the external cpu-pool collaborator named in the design this
// package follows: the lock that must be held before Priv's own lock
// whenever a pCPU is added to or removed from the pool. It is a
// minimal stand-in since no other component in this module owns pCPU
// hotplug.
type Pool struct {
	mu     sync.Mutex
	online affinity.Set
}

func NewPool(n int) *Pool {
	return &Pool{online: affinity.All(n)}
}

func (p *Pool) Lock()   { p.mu.Lock() }
func (p *Pool) Unlock() { p.mu.Unlock() }

// State is the scheduler-wide singleton (Priv in original_source):
// global tunables, the domain/vcpu arenas, and the per-pCPU slice.
// Its own lock (mu) nests inside Pool's lock and outside every
// individual PCPU's lock.
type State struct {
	mu sync.Mutex

	pool  *Pool
	topo  *Topology
	clock simclock.Clock
	cfg   AccountantConfig

	pcpus []*PCPU

	domains *arena[Domain]
	vcpus   *arena[VCPU]

	activeDomains *list.List // of DomainHandle
	weightTotal   uint32
	creditBalance int64

	pauser  Pauser
	metrics *metrics.Registry

	runqSortEpoch atomic.Uint32

	master int

	idlers affinity.Set

	defaultTSliceUS atomic.Int32
	tickPeriodUS    atomic.Int32
	ratelimitUS     atomic.Int32
}

// NewState builds a scheduler over topo.NumPCPU simulated pCPUs, all
// initially idle and online.
func NewState(topo *Topology, pool *Pool, clock simclock.Clock, cfg AccountantConfig) *State {
	s := &State{
		pool:          pool,
		topo:          topo,
		clock:         clock,
		cfg:           cfg,
		domains:       newArena[Domain](),
		vcpus:         newArena[VCPU](),
		activeDomains: list.New(),
		idlers:        affinity.All(topo.NumPCPU),
		pauser:        NoopPauser{},
	}
	s.defaultTSliceUS.Store(DefaultTimesliceUS)
	s.tickPeriodUS.Store(MetricTickPeriodUS)
	s.ratelimitUS.Store(DefaultRatelimitUS)
	for i := 0; i < topo.NumPCPU; i++ {
		s.pcpus = append(s.pcpus, newPCPU(i))
	}
	return s
}

func (s *State) PCPU(i int) *PCPU { return s.pcpus[i] }
func (s *State) NumPCPU() int     { return len(s.pcpus) }

// SetPauser installs the external vCPU-pause collaborator (§6's
// vcpu_pause_nosync/vcpu_unpause upcalls) the accountant calls when a
// capped domain's vCPU exceeds its cap. Tests use this to observe
// pause/unpause ordering instead of the default no-op.
func (s *State) SetPauser(p Pauser) {
	s.mu.Lock()
	s.pauser = p
	s.mu.Unlock()
}

// SetMetrics installs the Prometheus registry the scheduler's hot
// paths record against. Left nil (the default), every record call
// below is a no-op, so tests never need to wire a registry.
func (s *State) SetMetrics(m *metrics.Registry) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

func (s *State) domain(h DomainHandle) (*Domain, bool) { return s.domains.get(h.h) }
func (s *State) vcpu(h VCPUHandle) (*VCPU, bool)       { return s.vcpus.get(h.h) }

// InitDomain registers a new domain with the given weight, returning
// its handle. Privileged domains get the asymmetric excess-credit
// treatment documented on AccountantConfig. A domain with no vCPUs
// does not yet count toward Priv.weight or join active_sdom (invariant
// 3/4 in the design this package follows): that happens as its vCPUs
// are inserted.
func (s *State) InitDomain(weight uint16, privileged bool) (DomainHandle, error) {
	if weight == 0 {
		weight = DefaultWeight
	}
	if weight < MinWeight || weight > MaxWeight {
		return DomainHandle{}, ErrInvalidWeight
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.domains.alloc(func(hh handle, d *Domain) {
		initDomain(d, DomainHandle{hh}, weight, privileged)
	})
	dh := DomainHandle{h}
	_, ok := s.domain(dh)
	assert(ok, "domain vanished immediately after alloc")
	return dh, nil
}

// DestroyDomain removes a domain. All of its vCPUs must already have
// been removed via RemoveVCPU, which also drops the domain from
// active_sdom, so this never touches weightTotal itself.
func (s *State) DestroyDomain(dh DomainHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domain(dh)
	if !ok {
		return ErrUnknownDomain
	}
	assert(d.active.Len() == 0, "destroying domain %s with %d vcpus still attached", d.ID, d.active.Len())
	assert(d.activeElem == nil, "destroying domain %s still linked into active_sdom", d.ID)

	s.domains.free_(dh.h)
	return nil
}

// InsertVCPU allocates a vCPU under dom, bound to src for PMC reads,
// restricted to the pCPUs named in aff (the zero Set means "any
// online pCPU"), and enqueues it on whichever pCPU the picker
// chooses.
func (s *State) InsertVCPU(dom DomainHandle, aff affinity.Set, src pmc.Source) (VCPUHandle, error) {
	s.mu.Lock()
	d, ok := s.domain(dom)
	if !ok {
		s.mu.Unlock()
		return VCPUHandle{}, ErrUnknownDomain
	}
	if aff.Count() == 0 {
		aff = affinity.All(s.NumPCPU())
	}

	h := s.vcpus.alloc(func(hh handle, v *VCPU) {
		initVCPU(v, VCPUHandle{hh}, dom, aff, src)
	})
	vh := VCPUHandle{h}
	v, ok := s.vcpu(vh)
	assert(ok, "vcpu vanished immediately after alloc")
	s.joinActive(d, dom, vh)
	s.mu.Unlock()

	cpu := s.pickCPU(vh)
	v.Processor = cpu
	p := s.pcpus[cpu]
	p.mu.Lock()
	s.runqInsert(p, vh)
	p.mu.Unlock()
	s.updateIdlers(cpu)
	p.tickle()

	return vh, nil
}

// RemoveVCPU detaches a vCPU from its domain and pCPU runqueue.
func (s *State) RemoveVCPU(vh VCPUHandle) error {
	s.mu.Lock()
	v, ok := s.vcpu(vh)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownVCPU
	}
	d, ok := s.domain(v.Domain)
	assert(ok, "vcpu %v references missing domain", vh)

	p := s.pcpus[v.Processor]
	s.mu.Unlock()

	p.mu.Lock()
	if v.runqElem != nil {
		s.runqRemove(p, v)
	}
	if p.curr == vh {
		p.curr = VCPUHandle{}
	}
	p.mu.Unlock()

	s.mu.Lock()
	s.leaveActive(d, v.activeElem)
	s.vcpus.free_(vh.h)
	s.mu.Unlock()
	s.updateIdlers(p.Index)
	return nil
}

// joinActive adds vh to d's active-vcpu list, folding d into
// s.activeDomains on its first active vcpu and adding d.Weight to
// s.weightTotal, maintaining invariant 4 (Priv.weight = Σ weight ×
// active_vcpu_count). s.mu must be held.
func (s *State) joinActive(d *Domain, dh DomainHandle, vh VCPUHandle) {
	v, ok := s.vcpu(vh)
	assert(ok, "joinActive on unknown vcpu %v", vh)
	v.activeElem = d.active.PushBack(vh)
	if d.active.Len() == 1 {
		d.activeElem = s.activeDomains.PushBack(dh)
	}
	s.weightTotal += uint32(d.Weight)
}

// leaveActive removes elem from d's active-vcpu list, dropping d from
// s.activeDomains once its last active vcpu leaves. s.mu must be
// held.
func (s *State) leaveActive(d *Domain, elem *list.Element) {
	d.active.Remove(elem)
	s.weightTotal -= uint32(d.Weight)
	if d.active.Len() == 0 && d.activeElem != nil {
		s.activeDomains.Remove(d.activeElem)
		d.activeElem = nil
	}
}

// AdjustDomain changes a domain's weight and/or cap. A zero value
// leaves the corresponding field unchanged.
func (s *State) AdjustDomain(dh DomainHandle, weight, cap_ uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domain(dh)
	if !ok {
		return ErrUnknownDomain
	}
	if weight != 0 {
		if weight < MinWeight || weight > MaxWeight {
			return ErrInvalidWeight
		}
		n := uint32(d.active.Len())
		s.weightTotal = s.weightTotal - uint32(d.Weight)*n + uint32(weight)*n
		d.Weight = weight
	}
	if cap_ != 0 {
		if cap_ > MaxCap {
			return ErrInvalidCap
		}
		d.Cap = cap_
	}
	return nil
}

// AdjustGlobal changes pool-wide defaults: the accounting tick
// period and the rate limit below which a vCPU cannot be preempted
// for fairness reasons (only for cause: sleep, yield, a higher-band
// vCPU waking).
func (s *State) AdjustGlobal(tickPeriodUS, ratelimitUS int32) error {
	if tickPeriodUS != 0 && (tickPeriodUS < MinTimesliceUS || tickPeriodUS > MaxTimesliceUS*TicksPerTimeslice) {
		return ErrInvalidTSlice
	}
	if ratelimitUS != 0 && (ratelimitUS < MinRatelimitUS || ratelimitUS > MaxRatelimitUS) {
		return ErrInvalidRatelimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tickPeriodUS != 0 {
		s.tickPeriodUS.Store(tickPeriodUS)
	}
	if ratelimitUS != 0 {
		s.ratelimitUS.Store(ratelimitUS)
	}
	return nil
}

// updateIdlers recomputes whether pCPU cpu should be marked idle:
// idle means its runqueue holds nothing beyond the implicit idle
// vcpu.
func (s *State) updateIdlers(cpu int) {
	p := s.pcpus[cpu]
	p.mu.Lock()
	idle := p.runnable == 0
	p.mu.Unlock()

	s.mu.Lock()
	if idle {
		s.idlers.Set(cpu)
	} else {
		s.idlers.Clear(cpu)
	}
	s.mu.Unlock()
}

func (s *State) Idlers() affinity.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idlers
}

// DomainSnapshot is a point-in-time, lock-free-to-read copy of a
// domain's externally visible state, for dump/debug RPCs.
type DomainSnapshot struct {
	ID         string
	Weight     uint16
	Cap        uint16
	Privileged bool
	TSliceUS   int32
	VCPUCount  int
	Phase      Phase
}

func (s *State) DumpDomain(dh DomainHandle) (DomainSnapshot, error) {
	s.mu.Lock()
	d, ok := s.domain(dh)
	s.mu.Unlock()
	if !ok {
		return DomainSnapshot{}, ErrUnknownDomain
	}
	return DomainSnapshot{
		ID:         d.ID.String(),
		Weight:     d.Weight,
		Cap:        d.Cap,
		Privileged: d.Privileged,
		TSliceUS:   d.TSliceUS(),
		VCPUCount:  d.ActiveVCPUCount(),
		Phase:      d.phase,
	}, nil
}

// DumpAllDomains returns a snapshot of every active domain, for the
// control socket's ActionList equivalent.
func (s *State) DumpAllDomains() []DomainSnapshot {
	s.mu.Lock()
	handles := make([]DomainHandle, 0, s.activeDomains.Len())
	for e := s.activeDomains.Front(); e != nil; e = e.Next() {
		handles = append(handles, e.Value.(DomainHandle))
	}
	s.mu.Unlock()

	out := make([]DomainSnapshot, 0, len(handles))
	for _, h := range handles {
		if snap, err := s.DumpDomain(h); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// PCPUSnapshot reports a pCPU's load, for diagnostics.
type PCPUSnapshot struct {
	Index    int
	Runnable int
	Idle     bool
}

func (s *State) DumpPCPU(cpu int) PCPUSnapshot {
	p := s.pcpus[cpu]
	p.mu.Lock()
	defer p.mu.Unlock()
	return PCPUSnapshot{Index: cpu, Runnable: p.runnable, Idle: p.runnable == 0}
}

func (s *State) String() string {
	return fmt.Sprintf("sched.State{pcpus=%d}", s.NumPCPU())
}

// Settings is the pool-wide tunable surface reported by dump_settings:
// the global tick period and ratelimit every pCPU uses, plus the
// bounds AdjustGlobal enforces.
type Settings struct {
	TickPeriodUS   int32
	RatelimitUS    int32
	MinTimesliceUS int32
	MaxTimesliceUS int32
	MinRatelimitUS int32
	MaxRatelimitUS int32
}

func (s *State) DumpSettings() Settings {
	return Settings{
		TickPeriodUS:   s.tickPeriodUS.Load(),
		RatelimitUS:    s.ratelimitUS.Load(),
		MinTimesliceUS: MinTimesliceUS,
		MaxTimesliceUS: MaxTimesliceUS,
		MinRatelimitUS: MinRatelimitUS,
		MaxRatelimitUS: MaxRatelimitUS,
	}
}

// AdminConf is the pool-wide administrative/topology configuration
// reported by dump_admin_conf: boot parameters that are not runtime
// get/set-able through AdjustGlobal, named in §6's configuration
// surface.
type AdminConf struct {
	NumPCPU                       int
	ThreadsPerCore                int
	CoresPerSocket                int
	MasterPCPU                    int
	AsymmetricExcessCreditRemoval bool
}

func (s *State) DumpAdminConf() AdminConf {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AdminConf{
		NumPCPU:                       s.topo.NumPCPU,
		ThreadsPerCore:                s.topo.ThreadsPerCore,
		CoresPerSocket:                s.topo.CoresPerSocket,
		MasterPCPU:                    s.master,
		AsymmetricExcessCreditRemoval: s.cfg.AsymmetricExcessCreditRemoval,
	}
}

// AllocPCPU brings a pCPU into the pool (alloc_pdata), electing it
// master if no master is currently online. Mirrors
// csched_alloc_pdata's "first pCPU to join becomes master" rule.
func (s *State) AllocPCPU(cpu int) error {
	s.pool.Lock()
	defer s.pool.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cpu < 0 || cpu >= len(s.pcpus) {
		return ErrNoPCPU
	}
	p := s.pcpus[cpu]
	p.mu.Lock()
	wasOnline := p.online
	p.online = true
	p.mu.Unlock()
	if !wasOnline {
		s.idlers.Set(cpu)
	}
	if !s.anyOnlineLocked(s.master) {
		s.master = cpu
	}
	return nil
}

// FreePCPU takes a pCPU out of the pool (free_pdata). If it was the
// master, mastership migrates to the lowest-indexed remaining online
// pCPU, mirroring original_source's master-departure handling; any
// vCPU still on its runqueue is left for the caller to have drained
// first (free_pdata is only ever called on an already-quiesced pCPU).
func (s *State) FreePCPU(cpu int) error {
	s.pool.Lock()
	defer s.pool.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cpu < 0 || cpu >= len(s.pcpus) {
		return ErrNoPCPU
	}
	p := s.pcpus[cpu]
	p.mu.Lock()
	p.online = false
	p.mu.Unlock()
	s.idlers.Clear(cpu)

	if s.master == cpu {
		s.master = -1
		for i := range s.pcpus {
			if s.anyOnlineLocked(i) {
				s.master = i
				break
			}
		}
	}
	return nil
}

// anyOnlineLocked reports whether cpu is a valid, online pCPU index.
// s.mu must be held.
func (s *State) anyOnlineLocked(cpu int) bool {
	if cpu < 0 || cpu >= len(s.pcpus) {
		return false
	}
	p := s.pcpus[cpu]
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// TickSuspend suspends a pCPU's tick, accounting and metric work across
// a power event (tick_suspend), without disturbing its runqueue. Its
// timers keep firing; the pCPU loop skips the work while suspended.
func (s *State) TickSuspend(cpu int) {
	s.pcpus[cpu].suspended.Store(true)
}

// TickResume resumes a pCPU's tick, accounting and metric work after
// TickSuspend (tick_resume).
func (s *State) TickResume(cpu int) {
	s.pcpus[cpu].suspended.Store(false)
}
