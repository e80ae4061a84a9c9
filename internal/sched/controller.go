// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "strconv"

// decreaseTimeSlice shrinks a domain's time slice, transliterated
// from csched_decrease_time_slice: a domain running a slice of 2700us
// or more drops to a third of it (rounded down to a multiple of
// 100us), a domain in the 300-2699us range drops by a fixed 200us,
// and anything below 300us is set to MinTimesliceUS.
func decreaseTimeSlice(d *Domain) {
	cur := d.TSliceUS()
	var next int32
	if cur >= SwitchBoundary*3 {
		next = cur / 300 * 100
	} else if cur >= 300 {
		next = cur - 200
	} else {
		next = MinTimesliceUS
	}
	d.tsliceUS.Store(next)
}

// increaseTimeSlice grows a domain's time slice by a fixed 100us
// step, capped at MaxTimesliceUS. Transliterated from
// csched_increase_time_slice (the commented-out faster-growth branch
// for large slices is not implemented, per the design this package
// follows).
func increaseTimeSlice(d *Domain) {
	cur := d.TSliceUS()
	next := cur + 100
	if next >= MaxTimesliceUS {
		next = MaxTimesliceUS
	}
	d.tsliceUS.Store(next)
}

// submilliMetricUpdate is one call of the adaptive controller for a
// single domain, given this metric-tick period's instructions
// retired and cache misses. It is a direct transliteration of
// csched_submilli_metric_update.
func submilliMetricUpdate(d *Domain, instRetired, cacheMisses uint64) {
	spinCount := d.spinlockCount.Swap(0)
	spinSum := d.spinlockSum.Swap(0)
	var avgSpinlock uint64
	if spinCount > 0 {
		avgSpinlock = spinSum / spinCount
	}

	missRateCurr := int64(0)
	if instRetired != 0 {
		missRateCurr = int64(cacheMisses*100000) / int64(instRetired)
	}

	if d.eventTrackingWindow > 0 {
		idx := EventTrackingWindow - d.eventTrackingWindow
		d.filter[idx] = filterEntry{spinlock: avgSpinlock, instRetired: instRetired, cacheMisses: cacheMisses}
		d.eventTrackingWindow--
		if missRateCurr > 0 && missRateCurr < 100 {
			decreaseTimeSlice(d)
		}
		return
	}

	var instSum, cacheMissSum, spinSumWin uint64
	var spinSampleCount int64
	for i := 0; i < EventTrackingWindow; i++ {
		instSum += d.filter[i].instRetired
		cacheMissSum += d.filter[i].cacheMisses
		if d.filter[i].spinlock > 10000 {
			spinSampleCount++
			spinSumWin += d.filter[i].spinlock
		}
	}
	instMean := instSum / EventTrackingWindow
	cacheMissMean := cacheMissSum / EventTrackingWindow
	_ = spinSumWin // spinlockMean is computed for parity with original_source but not used in the stability test itself

	var missRateWindow int64
	if instMean > 0 {
		missRateWindow = int64(cacheMissMean*100000) / int64(instMean)
	}

	var err int64
	if missRateWindow > 0 {
		err = missRateCurr * 100 / missRateWindow
	} else if missRateCurr == 0 {
		err = 100
	} else {
		err = 0
	}

	stable := (err >= 70 && err <= 130) ||
		(err > 130 && missRateWindow >= 100) ||
		(missRateCurr < 100 && missRateWindow < 100)

	if stable {
		d.eventStableCount++
		eventWindowShift(d, avgSpinlock, instRetired, cacheMisses)
		if missRateWindow >= 100 {
			d.phase = PhaseLowSpin
			increaseTimeSlice(d)
		} else {
			d.phase = PhaseHighSpin
			decreaseTimeSlice(d)
		}
		d.tickPeriodUS.Store(d.TSliceUS() / TicksPerTimeslice)
	} else {
		d.eventStableCount = 0
		eventWindowClear(d)
		d.filter[0] = filterEntry{spinlock: avgSpinlock, instRetired: instRetired, cacheMisses: cacheMisses}
		d.eventTrackingWindow = EventTrackingWindow - 1
		if missRateCurr < 100 {
			decreaseTimeSlice(d)
		}
	}
}

// eventWindowShift slides the filter window left by one and appends
// a fresh observation, transliterated from csched_event_window_shift.
func eventWindowShift(d *Domain, spinlock, instRetired, cacheMisses uint64) {
	for i := 0; i < EventTrackingWindow-1; i++ {
		d.filter[i] = d.filter[i+1]
	}
	d.filter[EventTrackingWindow-1] = filterEntry{spinlock: spinlock, instRetired: instRetired, cacheMisses: cacheMisses}
}

// eventWindowClear zeroes the filter window, transliterated from
// csched_event_window_clear.
func eventWindowClear(d *Domain) {
	for i := range d.filter {
		d.filter[i] = filterEntry{}
	}
}

// domainMetricUpdate runs submilliMetricUpdate for every vCPU-summed
// domain, reading each vCPU's PMC delta since the last call.
// Corresponds to csched_dom_metric_update, and in original_source is
// only invoked on the elected master pCPU; callers here are expected
// to guard that the same way (see pcpuLoop in pcpu_loop.go).
func (s *State) domainMetricUpdate() {
	s.mu.Lock()
	handles := make([]DomainHandle, 0, s.activeDomains.Len())
	for e := s.activeDomains.Front(); e != nil; e = e.Next() {
		handles = append(handles, e.Value.(DomainHandle))
	}
	s.mu.Unlock()

	for _, dh := range handles {
		d, ok := s.domain(dh)
		if !ok {
			continue
		}
		d.pendingRequests.Store(0)

		var instSum, cacheMissSum uint64
		s.mu.Lock()
		for e := d.active.Front(); e != nil; e = e.Next() {
			vh := e.Value.(VCPUHandle)
			v, ok := s.vcpu(vh)
			if !ok || v.pmcSource == nil {
				continue
			}
			cur := v.pmcSource.Read()
			delta := cur.Delta(v.prevPMC)
			v.prevPMC = cur
			instSum += delta.Instructions
			cacheMissSum += delta.CacheMisses
			if delta.LockCycles > 0 {
				d.RecordSpinWait(delta.LockCycles)
			}
		}
		s.mu.Unlock()

		submilliMetricUpdate(d, instSum, cacheMissSum)

		if s.metrics != nil {
			label := strconv.Itoa(int(dh.h.idx))
			s.metrics.TimesliceUS.WithLabelValues(label).Set(float64(d.TSliceUS()))
			s.metrics.DomainPhase.WithLabelValues(label).Set(float64(d.phase))
		}
	}
}
