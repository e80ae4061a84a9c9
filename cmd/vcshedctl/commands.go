// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vcshed/internal/protocol"
)

func initDomainCmd(socket *string) *cobra.Command {
	var weight uint16
	var privileged bool
	cmd := &cobra.Command{
		Use:   "init-domain",
		Short: "Create a new domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.do(protocol.ActionInitDomain{Weight: weight, Privileged: privileged})
			if err != nil {
				return err
			}
			fmt.Println(resp.Domain)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&weight, "weight", 256, "domain weight")
	cmd.Flags().BoolVar(&privileged, "privileged", false, "grant this domain asymmetric excess-credit treatment")
	return cmd
}

func destroyDomainCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy-domain <domain-id>",
		Short: "Destroy a domain (it must have no vCPUs left)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionDestroyDomain{Domain: id})
			return err
		},
	}
}

func adjustDomainCmd(socket *string) *cobra.Command {
	var weight, cap_ uint16
	cmd := &cobra.Command{
		Use:   "adjust-domain <domain-id>",
		Short: "Change a domain's weight and/or utilization cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionAdjustDomain{Domain: id, Weight: weight, Cap: cap_})
			return err
		},
	}
	cmd.Flags().Uint16Var(&weight, "weight", 0, "new weight (0 leaves unchanged)")
	cmd.Flags().Uint16Var(&cap_, "cap", 0, "new utilization cap percentage (0 leaves unchanged)")
	return cmd
}

func adjustGlobalCmd(socket *string) *cobra.Command {
	var tickPeriodUS, ratelimitUS int32
	cmd := &cobra.Command{
		Use:   "adjust-global",
		Short: "Change pool-wide scheduler tunables (requires root)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionAdjustGlobal{TickPeriodUS: tickPeriodUS, RatelimitUS: ratelimitUS})
			return err
		},
	}
	cmd.Flags().Int32Var(&tickPeriodUS, "tick-period-us", 0, "accounting tick period in microseconds (0 leaves unchanged)")
	cmd.Flags().Int32Var(&ratelimitUS, "ratelimit-us", 0, "scheduling rate limit in microseconds (0 leaves unchanged)")
	return cmd
}

func insertVCPUCmd(socket *string) *cobra.Command {
	var domain, affinity, profile string
	cmd := &cobra.Command{
		Use:   "insert-vcpu",
		Short: "Create a vCPU under a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(domain)
			if err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.do(protocol.ActionInsertVCPU{Domain: id, Affinity: affinity, Profile: profile})
			if err != nil {
				return err
			}
			fmt.Println(resp.VCPU)
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "domain id (required)")
	cmd.Flags().StringVar(&affinity, "affinity", "", "pCPU affinity, CPU-list format (e.g. 0-3); empty means any")
	cmd.Flags().StringVar(&profile, "profile", "cpu-bound", "synthetic workload profile: cpu-bound, lock-heavy, cache-thrashing")
	cmd.MarkFlagRequired("domain")
	return cmd
}

func removeVCPUCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-vcpu <vcpu-id>",
		Short: "Remove a vCPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionRemoveVCPU{VCPU: id})
			return err
		},
	}
}

func lifecycleCmd(socket *string, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <vcpu-id>",
		Short: "Send the " + verb + " lifecycle event to a vCPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			var action interface{}
			switch verb {
			case "sleep":
				action = protocol.ActionSleep{VCPU: id}
			case "wake":
				action = protocol.ActionWake{VCPU: id}
			case "yield":
				action = protocol.ActionYield{VCPU: id}
			}
			_, err = c.do(action)
			return err
		},
	}
}

func listCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every domain and its controller state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.do(protocol.ActionListDomains{})
			if err != nil {
				return err
			}
			for _, d := range resp.Domains {
				fmt.Printf("%s  weight=%-6d cap=%-3d privileged=%-5t vcpus=%-3d tslice_us=%-5d phase=%s\n",
					d.Domain, d.Weight, d.Cap, d.Privileged, d.VCPUCount, d.TSliceUS, d.Phase)
			}
			return nil
		},
	}
}

func dumpPCPUCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-pcpu <index>",
		Short: "Show one pCPU's runqueue depth",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idx int
			if _, err := fmt.Sscanf(args[0], "%d", &idx); err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.do(protocol.ActionDumpPCPU{Index: idx})
			if err != nil {
				return err
			}
			fmt.Printf("pcpu=%d runnable=%d idle=%t\n", resp.PCPU.Index, resp.PCPU.Runnable, resp.PCPU.Idle)
			return nil
		},
	}
}

func dumpSettingsCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-settings",
		Short: "Show pool-wide tunables and their bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.do(protocol.ActionDumpSettings{})
			if err != nil {
				return err
			}
			s := resp.Settings
			fmt.Printf("tick_period_us=%d ratelimit_us=%d tslice_us=[%d,%d] ratelimit_us_bounds=[%d,%d]\n",
				s.TickPeriodUS, s.RatelimitUS, s.MinTimesliceUS, s.MaxTimesliceUS, s.MinRatelimitUS, s.MaxRatelimitUS)
			return nil
		},
	}
}

func dumpAdminConfCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-admin-conf",
		Short: "Show the pool's topology and boot-time configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.do(protocol.ActionDumpAdminConf{})
			if err != nil {
				return err
			}
			a := resp.AdminConf
			fmt.Printf("num_pcpu=%d threads_per_core=%d cores_per_socket=%d master=%d asymmetric_excess_credit_removal=%t\n",
				a.NumPCPU, a.ThreadsPerCore, a.CoresPerSocket, a.MasterPCPU, a.AsymmetricExcessCreditRemoval)
			return nil
		},
	}
}

func allocPCPUCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "alloc-pcpu <index>",
		Short: "Bring a pCPU into the pool (requires root)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idx int
			if _, err := fmt.Sscanf(args[0], "%d", &idx); err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionAllocPCPU{Index: idx})
			return err
		},
	}
}

func freePCPUCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "free-pcpu <index>",
		Short: "Take a pCPU out of the pool (requires root)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idx int
			if _, err := fmt.Sscanf(args[0], "%d", &idx); err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionFreePCPU{Index: idx})
			return err
		},
	}
}

func raiseTaskletCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "raise-tasklet <index>",
		Short: "Mark a pCPU as having a pending tasklet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idx int
			if _, err := fmt.Sscanf(args[0], "%d", &idx); err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.do(protocol.ActionRaiseTasklet{Index: idx})
			return err
		},
	}
}

func tickSuspendResumeCmd(socket *string, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick-" + verb + " <index>",
		Short: "Send tick_" + verb + " to one pCPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idx int
			if _, err := fmt.Sscanf(args[0], "%d", &idx); err != nil {
				return err
			}
			c, err := connect(*socket)
			if err != nil {
				return err
			}
			defer c.Close()
			var action interface{}
			if verb == "suspend" {
				action = protocol.ActionTickSuspend{Index: idx}
			} else {
				action = protocol.ActionTickResume{Index: idx}
			}
			_, err = c.do(action)
			return err
		},
	}
}
