// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/gob"
	"errors"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"inet.af/peercred"

	"vcshed/internal/affinity"
	"vcshed/internal/pmc"
	"vcshed/internal/protocol"
	"vcshed/internal/sched"
	"vcshed/internal/vclog"
)

// registry maps the stable UUIDs handed out over the control socket
// to the arena handles internal/sched actually operates on, since
// handles are only valid for this process's lifetime and unsuitable
// to expose as a wire identifier.
type registry struct {
	mu      sync.Mutex
	domains map[uuid.UUID]sched.DomainHandle
	vcpus   map[uuid.UUID]sched.VCPUHandle
}

func newRegistry() *registry {
	return &registry{domains: map[uuid.UUID]sched.DomainHandle{}, vcpus: map[uuid.UUID]sched.VCPUHandle{}}
}

// Server handles one client connection's RPCs against the shared
// scheduler state, patterned on perflock's Server.Serve accept-loop.
type Server struct {
	c    net.Conn
	st   *sched.State
	reg  *registry
	rootUID string // the daemon's own euid, as a string; privileged RPCs require this or "0"
	log  zerolog.Logger
}

func NewServer(c net.Conn, st *sched.State, reg *registry, rootUID string) *Server {
	return &Server{c: c, st: st, reg: reg, rootUID: rootUID, log: vclog.WithComponent("control")}
}

func send(enc *gob.Encoder, a interface{}) bool {
	return enc.Encode(a) == nil
}

// Serve decodes Actions from the connection until it errors or
// closes, dispatching each to the shared scheduler state and sending
// back exactly one Response per Action.
func (s *Server) Serve() {
	defer s.c.Close()

	cred, err := peercred.Get(s.c)
	if err != nil {
		s.log.Warn().Err(err).Msg("reading peer credentials")
		return
	}
	uid, _ := cred.UserID()

	dec := gob.NewDecoder(s.c)
	enc := gob.NewEncoder(s.c)
	for {
		var act protocol.Action
		if err := dec.Decode(&act); err != nil {
			return
		}
		resp := s.handle(act.Action, uid)
		if !send(enc, resp) {
			return
		}
	}
}

func (s *Server) handle(action interface{}, uid string) protocol.Response {
	switch a := action.(type) {
	case protocol.ActionInitDomain:
		dh, err := s.st.InitDomain(a.Weight, a.Privileged)
		if err != nil {
			return errResp(err)
		}
		id := uuid.New()
		s.reg.mu.Lock()
		s.reg.domains[id] = dh
		s.reg.mu.Unlock()
		return protocol.Response{Domain: id}

	case protocol.ActionDestroyDomain:
		s.reg.mu.Lock()
		dh, ok := s.reg.domains[a.Domain]
		delete(s.reg.domains, a.Domain)
		s.reg.mu.Unlock()
		if !ok {
			return errResp(sched.ErrUnknownDomain)
		}
		if err := s.st.DestroyDomain(dh); err != nil {
			return errResp(err)
		}
		return protocol.Response{}

	case protocol.ActionAdjustDomain:
		s.reg.mu.Lock()
		dh, ok := s.reg.domains[a.Domain]
		s.reg.mu.Unlock()
		if !ok {
			return errResp(sched.ErrUnknownDomain)
		}
		if err := s.st.AdjustDomain(dh, a.Weight, a.Cap); err != nil {
			return errResp(err)
		}
		return protocol.Response{}

	case protocol.ActionAdjustGlobal:
		if uid != "0" && uid != s.rootUID {
			return errResp(errors.New("permission denied: adjusting global scheduler parameters requires root"))
		}
		if err := s.st.AdjustGlobal(a.TickPeriodUS, a.RatelimitUS); err != nil {
			return errResp(err)
		}
		return protocol.Response{}

	case protocol.ActionInsertVCPU:
		s.reg.mu.Lock()
		dh, ok := s.reg.domains[a.Domain]
		s.reg.mu.Unlock()
		if !ok {
			return errResp(sched.ErrUnknownDomain)
		}
		var aff affinity.Set
		if a.Affinity != "" {
			var err error
			aff, err = affinity.Parse(a.Affinity)
			if err != nil {
				return errResp(err)
			}
		}
		src := pmc.NewSoftwareSource(profileFromString(a.Profile), nowNanos)
		vh, err := s.st.InsertVCPU(dh, aff, src)
		if err != nil {
			return errResp(err)
		}
		id := uuid.New()
		s.reg.mu.Lock()
		s.reg.vcpus[id] = vh
		s.reg.mu.Unlock()
		return protocol.Response{VCPU: id}

	case protocol.ActionRemoveVCPU:
		s.reg.mu.Lock()
		vh, ok := s.reg.vcpus[a.VCPU]
		delete(s.reg.vcpus, a.VCPU)
		s.reg.mu.Unlock()
		if !ok {
			return errResp(sched.ErrUnknownVCPU)
		}
		if err := s.st.RemoveVCPU(vh); err != nil {
			return errResp(err)
		}
		return protocol.Response{}

	case protocol.ActionSleep:
		return s.vcpuOp(a.VCPU, s.st.Sleep)
	case protocol.ActionWake:
		return s.vcpuOp(a.VCPU, s.st.Wake)
	case protocol.ActionYield:
		return s.vcpuOp(a.VCPU, s.st.Yield)

	case protocol.ActionListDomains:
		snaps := s.st.DumpAllDomains()
		s.reg.mu.Lock()
		inverse := make(map[sched.DomainHandle]uuid.UUID, len(s.reg.domains))
		for id, dh := range s.reg.domains {
			inverse[dh] = id
		}
		s.reg.mu.Unlock()
		out := make([]protocol.DomainInfo, 0, len(snaps))
		// DumpAllDomains doesn't carry handles, so re-walk by id to
		// recover per-domain snapshots keyed the way clients expect.
		for dh, id := range inverse {
			snap, err := s.st.DumpDomain(dh)
			if err != nil {
				continue
			}
			out = append(out, protocol.DomainInfo{
				Domain:     id,
				Weight:     snap.Weight,
				Cap:        snap.Cap,
				Privileged: snap.Privileged,
				TSliceUS:   snap.TSliceUS,
				VCPUCount:  snap.VCPUCount,
				Phase:      phaseString(snap.Phase),
			})
		}
		return protocol.Response{Domains: out}

	case protocol.ActionDumpPCPU:
		if a.Index < 0 || a.Index >= s.st.NumPCPU() {
			return errResp(errors.New("pcpu index out of range"))
		}
		snap := s.st.DumpPCPU(a.Index)
		return protocol.Response{PCPU: protocol.PCPUInfo{Index: snap.Index, Runnable: snap.Runnable, Idle: snap.Idle}}

	case protocol.ActionDumpSettings:
		set := s.st.DumpSettings()
		return protocol.Response{Settings: protocol.SettingsInfo{
			TickPeriodUS:   set.TickPeriodUS,
			RatelimitUS:    set.RatelimitUS,
			MinTimesliceUS: set.MinTimesliceUS,
			MaxTimesliceUS: set.MaxTimesliceUS,
			MinRatelimitUS: set.MinRatelimitUS,
			MaxRatelimitUS: set.MaxRatelimitUS,
		}}

	case protocol.ActionDumpAdminConf:
		ac := s.st.DumpAdminConf()
		return protocol.Response{AdminConf: protocol.AdminConfInfo{
			NumPCPU:                       ac.NumPCPU,
			ThreadsPerCore:                ac.ThreadsPerCore,
			CoresPerSocket:                ac.CoresPerSocket,
			MasterPCPU:                    ac.MasterPCPU,
			AsymmetricExcessCreditRemoval: ac.AsymmetricExcessCreditRemoval,
		}}

	case protocol.ActionAllocPCPU:
		if uid != "0" && uid != s.rootUID {
			return errResp(errors.New("permission denied: allocating a pcpu requires root"))
		}
		if err := s.st.AllocPCPU(a.Index); err != nil {
			return errResp(err)
		}
		return protocol.Response{}

	case protocol.ActionFreePCPU:
		if uid != "0" && uid != s.rootUID {
			return errResp(errors.New("permission denied: freeing a pcpu requires root"))
		}
		if err := s.st.FreePCPU(a.Index); err != nil {
			return errResp(err)
		}
		return protocol.Response{}

	case protocol.ActionTickSuspend:
		if a.Index < 0 || a.Index >= s.st.NumPCPU() {
			return errResp(errors.New("pcpu index out of range"))
		}
		s.st.TickSuspend(a.Index)
		return protocol.Response{}

	case protocol.ActionTickResume:
		if a.Index < 0 || a.Index >= s.st.NumPCPU() {
			return errResp(errors.New("pcpu index out of range"))
		}
		s.st.TickResume(a.Index)
		return protocol.Response{}

	case protocol.ActionRaiseTasklet:
		if a.Index < 0 || a.Index >= s.st.NumPCPU() {
			return errResp(errors.New("pcpu index out of range"))
		}
		s.st.RaiseTasklet(a.Index)
		return protocol.Response{}

	default:
		return errResp(errors.New("unknown action"))
	}
}

func (s *Server) vcpuOp(id uuid.UUID, op func(sched.VCPUHandle) error) protocol.Response {
	s.reg.mu.Lock()
	vh, ok := s.reg.vcpus[id]
	s.reg.mu.Unlock()
	if !ok {
		return errResp(sched.ErrUnknownVCPU)
	}
	if err := op(vh); err != nil {
		return errResp(err)
	}
	return protocol.Response{}
}

func errResp(err error) protocol.Response {
	return protocol.Response{Err: err.Error()}
}

func phaseString(p sched.Phase) string {
	if p == sched.PhaseHighSpin {
		return "high-spin"
	}
	return "low-spin"
}

func nowNanos() uint64 { return uint64(time.Now().UnixNano()) }

func profileFromString(s string) pmc.Profile {
	switch s {
	case "lock-heavy":
		return pmc.ProfileLockHeavy
	case "cache-thrashing":
		return pmc.ProfileCacheThrashing
	default:
		return pmc.ProfileCPUBound
	}
}

// doDaemon listens on path and serves every connection against a
// shared scheduler State, mirroring perflock's accept loop shape.
func doDaemon(path string, st *sched.State, reg *registry) error {
	isAbstractSocket := runtime.GOOS == "linux" && len(path) > 1 && path[0] == '@'
	if !isAbstractSocket {
		os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	defer l.Close()
	if !isAbstractSocket {
		if err := os.Chmod(path, 0777); err != nil {
			return err
		}
	}

	rootUID := currentUID()
	log := vclog.WithComponent("daemon")
	log.Info().Str("socket", path).Msg("listening")

	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go NewServer(conn, st, reg, rootUID).Serve()
	}
}
