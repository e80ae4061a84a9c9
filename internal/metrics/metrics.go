// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes the scheduler's Prometheus instrumentation.
// Dump/diagnostic operations stay plain structs returned over the
// control socket (see internal/protocol); this package only covers
// the counters and gauges an operator would scrape continuously.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric vcshedd exports, so main can wire a
// single promhttp.Handler against one *prometheus.Registry.
type Registry struct {
	Reg *prometheus.Registry

	DispatchTotal   *prometheus.CounterVec
	IdleSeconds     *prometheus.CounterVec
	TimesliceUS     *prometheus.GaugeVec
	RunqueueDepth   *prometheus.GaugeVec
	StealsTotal     prometheus.Counter
	AccountingRuns  prometheus.Counter
	DomainPhase     *prometheus.GaugeVec
}

// NewRegistry constructs and registers every metric against a fresh
// prometheus.Registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		Reg: reg,
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcshed",
			Name:      "dispatch_total",
			Help:      "Dispatch decisions made, by pCPU.",
		}, []string{"pcpu"}),
		IdleSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcshed",
			Name:      "idle_seconds_total",
			Help:      "Cumulative time a pCPU spent idle.",
		}, []string{"pcpu"}),
		TimesliceUS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vcshed",
			Name:      "domain_timeslice_microseconds",
			Help:      "Current controller-published time slice for a domain.",
		}, []string{"domain"}),
		RunqueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vcshed",
			Name:      "runqueue_depth",
			Help:      "Runnable vCPU count on a pCPU's runqueue.",
		}, []string{"pcpu"}),
		StealsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcshed",
			Name:      "work_steals_total",
			Help:      "vCPUs migrated by the load balancer.",
		}),
		AccountingRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcshed",
			Name:      "accounting_runs_total",
			Help:      "Master credit-accountant passes executed.",
		}),
		DomainPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vcshed",
			Name:      "domain_phase",
			Help:      "Controller phase per domain (0=low-spin, 1=high-spin).",
		}, []string{"domain"}),
	}
	reg.MustRegister(
		r.DispatchTotal, r.IdleSeconds, r.TimesliceUS,
		r.RunqueueDepth, r.StealsTotal, r.AccountingRuns, r.DomainPhase,
	)
	return r
}
