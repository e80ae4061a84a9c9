// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "time"

// burnCredits debits v for the wall-clock time it has run since its
// last recorded start_time, advancing start_time by exactly the
// debited amount (not to now) so that sub-microsecond remainders
// aren't lost, matching burn_credits in original_source.
func burnCredits(v *VCPU, now time.Time) {
	if v.startTime.IsZero() {
		v.startTime = now
		return
	}
	delta := now.Sub(v.startTime)
	if delta <= 0 {
		return
	}
	us := delta.Microseconds()
	if us <= 0 {
		return
	}
	v.AddCredit(int32(-us * CreditsPerUS))
	v.startTime = v.startTime.Add(time.Duration(us) * time.Microsecond)
}

// classifyBand derives the scheduling band a vcpu should occupy from
// its credit balance, except that BOOST (granted on wake, see Wake in
// lifecycle.go) is always kept here; Tick is what demotes a running
// BOOST vcpu to UNDER.
func classifyBand(v *VCPU) Band {
	if v.Band() == BandBoost {
		return BandBoost
	}
	if v.Credit() >= 0 {
		return BandUnder
	}
	return BandOver
}

// idleCreditFloor names the credit level of one default time slice
// of debt. No scheduling path reads it: a vcpu whose credit falls
// below it keeps its place on the runqueue.
const idleCreditFloor = -int32(DefaultTimesliceUS)
