// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vcshedctl is the operator-facing client for vcshedd,
// built the way ja7ad/consumption's CLI wires cobra commands: one
// root command holding shared flags, one subcommand per operation.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	var socket string

	root := &cobra.Command{
		Use:   "vcshedctl",
		Short: "Control vcshedd, the credit-based vCPU scheduler daemon",
	}
	root.PersistentFlags().StringVar(&socket, "socket", "/var/run/vcshed.socket", "path to vcshedd's control socket")

	root.AddCommand(
		initDomainCmd(&socket),
		destroyDomainCmd(&socket),
		adjustDomainCmd(&socket),
		adjustGlobalCmd(&socket),
		insertVCPUCmd(&socket),
		removeVCPUCmd(&socket),
		lifecycleCmd(&socket, "sleep"),
		lifecycleCmd(&socket, "wake"),
		lifecycleCmd(&socket, "yield"),
		listCmd(&socket),
		dumpPCPUCmd(&socket),
		dumpSettingsCmd(&socket),
		dumpAdminConfCmd(&socket),
		allocPCPUCmd(&socket),
		freePCPUCmd(&socket),
		tickSuspendResumeCmd(&socket, "suspend"),
		tickSuspendResumeCmd(&socket, "resume"),
		raiseTaskletCmd(&socket),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(socket string) (*Client, error) {
	return NewClient(socket)
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
