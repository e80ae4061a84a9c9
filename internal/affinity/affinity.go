// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package affinity contains pCPU bitmask helpers built on the CPUSet
// functionality in golang.org/x/sys/unix. vCPU affinity masks, the
// idle-pCPU set, and the cpu-pool's online mask are all represented
// as unix.CPUSet values, but here the bit index is a simulated pCPU
// index rather than a real OS CPU number.
package affinity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Set is a bitmask of pCPU indices.
type Set = unix.CPUSet

// Parse constructs a Set from a Linux CPU-list formatted string, e.g.
// "0-5,34,46-48".
//
// See: http://man7.org/linux/man-pages/man7/cpuset.7.html#FORMATS
//
// Code adapted from https://github.com/kubernetes/kubernetes/blob/v1.27.10/pkg/kubelet/cm/cpuset/cpuset.go#L201
//
// Apache License 2.0
func Parse(s string) (Set, error) {
	var set Set

	// Handle empty string.
	if s == "" {
		return set, errors.New("cannot parse empty string")
	}

	// Split CPU list string:
	// "0-5,34,46-48" => ["0-5", "34", "46-48"]
	ranges := strings.Split(s, ",")

	for _, r := range ranges {
		boundaries := strings.SplitN(r, "-", 2)
		if len(boundaries) == 1 {
			// Handle ranges that consist of only one element like "34".
			elem, err := strconv.Atoi(boundaries[0])
			if err != nil {
				return set, err
			}
			set.Set(elem)
		} else if len(boundaries) == 2 {
			// Handle multi-element ranges like "0-5".
			start, err := strconv.Atoi(boundaries[0])
			if err != nil {
				return set, err
			}
			end, err := strconv.Atoi(boundaries[1])
			if err != nil {
				return set, err
			}
			if start > end {
				return set, fmt.Errorf("invalid range %q (%d > %d)", r, start, end)
			}
			// start == end is acceptable (1-1 -> 1)
			for e := start; e <= end; e++ {
				set.Set(e)
			}
		}
	}
	return set, nil
}

// All returns the mask with the first n pCPUs set.
func All(n int) Set {
	var set Set
	for i := 0; i < n; i++ {
		set.Set(i)
	}
	return set
}

func Intersect(a, b Set) Set {
	var res Set
	for i := range a {
		res[i] = a[i] & b[i]
	}
	return res
}

func Union(a, b Set) Set {
	var res Set
	for i := range a {
		res[i] = a[i] | b[i]
	}
	return res
}

func Difference(a, b Set) Set {
	var res Set
	for i := range a {
		res[i] = a[i] &^ b[i]
	}
	return res
}

// Range calls fn with the index of every pCPU available in the set,
// in ascending order.
func Range(s Set, fn func(int)) {
	count := s.Count()
	for i := 0; count > 0; i++ {
		if s.IsSet(i) {
			fn(i)
			count--
		}
	}
}

// maxCPU bounds the search space for Cycle; it comfortably exceeds
// any pCPU count this scheduler is built to simulate.
const maxCPU = 4096

// Cycle returns the lowest member of s strictly greater than from,
// wrapping around to the lowest member of s if none is greater. It
// returns from unchanged if s is empty. This is the Go-side
// replacement for the kernel's cpumask_cycle(), for round-robining
// among candidates without favoring low-numbered pCPUs; the picker
// and tickle paths in internal/sched do not call it.
func Cycle(from int, s Set) int {
	if s.Count() == 0 {
		return from
	}
	first := -1
	for i := 0; i < maxCPU; i++ {
		if !s.IsSet(i) {
			continue
		}
		if first == -1 {
			first = i
		}
		if i > from {
			return i
		}
	}
	return first
}

const bytesPerChunk = unsafe.Sizeof(Set{}[0])

// String renders the set as a sequence of non-zero hex chunks plus a
// total population count, for logs and diagnostic dumps.
func String(s Set) string {
	var sb strings.Builder
	for i := 0; i < len(s) && i*8*int(bytesPerChunk) < maxCPU; i++ {
		if s[i] == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%08X ", s[i])
	}
	fmt.Fprintf(&sb, "total: %d", s.Count())
	return sb.String()
}
