// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFreePCPUMigratesMaster checks that taking the current master
// pCPU out of the pool hands mastership to the lowest-indexed
// remaining online pCPU, per free_pdata's master-departure rule.
func TestFreePCPUMigratesMaster(t *testing.T) {
	st, _ := newTestScheduler(3)
	require.Equal(t, 0, st.pickMaster())

	require.NoError(t, st.FreePCPU(0))
	require.Equal(t, 1, st.pickMaster())

	require.NoError(t, st.FreePCPU(1))
	require.Equal(t, 2, st.pickMaster())
}

// TestFreePCPULastOneLeavesNoMaster checks that taking every pCPU out
// of the pool leaves master unset rather than wrapping back to a
// since-departed index.
func TestFreePCPULastOneLeavesNoMaster(t *testing.T) {
	st, _ := newTestScheduler(1)
	require.Equal(t, 0, st.pickMaster())

	require.NoError(t, st.FreePCPU(0))
	require.Equal(t, -1, st.pickMaster())
}

// TestAllocPCPUElectsMasterWhenNoneOnline checks alloc_pdata's
// "first pCPU to join becomes master" rule: once every pCPU has been
// freed, the next one allocated is elected master.
func TestAllocPCPUElectsMasterWhenNoneOnline(t *testing.T) {
	st, _ := newTestScheduler(2)
	require.NoError(t, st.FreePCPU(0))
	require.NoError(t, st.FreePCPU(1))
	require.Equal(t, -1, st.pickMaster())

	require.NoError(t, st.AllocPCPU(1))
	require.Equal(t, 1, st.pickMaster())
}

// TestAllocPCPUDoesNotStealExistingMaster checks that allocating a
// pCPU while a master is already online leaves mastership alone.
func TestAllocPCPUDoesNotStealExistingMaster(t *testing.T) {
	st, _ := newTestScheduler(2)
	require.NoError(t, st.FreePCPU(1))
	require.Equal(t, 0, st.pickMaster())

	require.NoError(t, st.AllocPCPU(1))
	require.Equal(t, 0, st.pickMaster())
}

// TestFreePCPUOutOfRange checks that an invalid pCPU index is
// rejected rather than panicking on an out-of-bounds slice access.
func TestFreePCPUOutOfRange(t *testing.T) {
	st, _ := newTestScheduler(1)
	require.ErrorIs(t, st.FreePCPU(5), ErrNoPCPU)
	require.ErrorIs(t, st.AllocPCPU(-1), ErrNoPCPU)
}

// TestTickSuspendResume checks that TickSuspend/TickResume toggle the
// per-pCPU suspended flag observed by pcpuLoop, without disturbing
// online/master state.
func TestTickSuspendResume(t *testing.T) {
	st, _ := newTestScheduler(1)
	p := st.PCPU(0)
	require.False(t, p.suspended.Load())

	st.TickSuspend(0)
	require.True(t, p.suspended.Load())
	require.Equal(t, 0, st.pickMaster())

	st.TickResume(0)
	require.False(t, p.suspended.Load())
}
