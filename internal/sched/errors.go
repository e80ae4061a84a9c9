// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	ErrUnknownDomain   = errors.New("sched: unknown domain")
	ErrUnknownVCPU     = errors.New("sched: unknown vcpu")
	ErrInvalidWeight   = errors.New("sched: weight out of range")
	ErrInvalidCap      = errors.New("sched: cap out of range")
	ErrInvalidTSlice   = errors.New("sched: timeslice out of range")
	ErrInvalidRatelimit = errors.New("sched: ratelimit out of range")
	ErrNoPCPU          = errors.New("sched: no pcpu available for affinity")
)

// assert panics with a message naming the call site if cond is
// false. Reserved for invariants that indicate a bug in this package,
// never for validating external input (use the Err* values above for
// that).
func assert(cond bool, format string, a ...interface{}) {
	if cond {
		return
	}
	pc := make([]uintptr, 1)
	n := runtime.Callers(2, pc)
	msg := fmt.Sprintf(format, a...)
	if n == 0 {
		panic("sched: assertion failed: " + msg)
	}
	frame, _ := runtime.CallersFrames(pc[:n]).Next()
	panic(fmt.Sprintf("sched: assertion failed at %s:%d: %s", frame.File, frame.Line, msg))
}
