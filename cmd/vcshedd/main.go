// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vcshedd is the scheduler daemon: it owns the simulated pCPU
// pool and serves domain/vCPU lifecycle and inspection RPCs over a
// UNIX control socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vcshed/internal/config"
	"vcshed/internal/metrics"
	"vcshed/internal/sched"
	"vcshed/internal/simclock"
	"vcshed/internal/vclog"
)

func currentUID() string {
	return strconv.Itoa(os.Geteuid())
}

func main() {
	flagConfig := flag.String("config", "", "path to a YAML config file")
	flagSocket := flag.String("socket", "", "override the control-socket path")
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *flagSocket != "" {
		cfg.Socket = *flagSocket
	}

	vclog.Configure(vclog.Config{Level: cfg.LogLevel, Service: "vcshedd", Pretty: cfg.Pretty})
	log := vclog.WithComponent("main")

	topo := &sched.Topology{NumPCPU: cfg.NumPCPU, ThreadsPerCore: cfg.ThreadsPerCore, CoresPerSocket: cfg.CoresPerSocket}
	pool := sched.NewPool(cfg.NumPCPU)
	acctCfg := sched.AccountantConfig{AsymmetricExcessCreditRemoval: cfg.AsymmetricExcess}
	clock := simclock.Real{}
	st := sched.NewState(topo, pool, clock, acctCfg)
	if err := st.AdjustGlobal(cfg.TickPeriodUS, cfg.RatelimitUS); err != nil {
		log.Warn().Err(err).Msg("ignoring invalid global tunables from config")
	}

	reg := newRegistry()

	if *flagConfig != "" {
		if w, err := config.NewWatcher(*flagConfig, cfg, func(c config.Config) {
			if err := st.AdjustGlobal(c.TickPeriodUS, c.RatelimitUS); err != nil {
				log.Warn().Err(err).Msg("rejected global tunables from reloaded config")
			}
		}); err != nil {
			log.Warn().Err(err).Msg("config file watch disabled")
		} else {
			defer w.Close()
		}
	}

	metricsReg := metrics.NewRegistry()
	st.SetMetrics(metricsReg)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsReg.Reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := sched.NewRunner(st, clock)
	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("pcpu runner exited")
		}
	}()

	log.Info().Int("pcpus", cfg.NumPCPU).Msg("starting")
	if err := doDaemon(cfg.Socket, st, reg); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("control socket listener failed")
	}
	<-ctx.Done()
	log.Info().Msg("shutting down")
}
