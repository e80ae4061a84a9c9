// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package affinity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"0", []int{0}},
		{"0-3", []int{0, 1, 2, 3}},
		{"0-1,4,6-7", []int{0, 1, 4, 6, 7}},
		{"5-5", []int{5}},
	}
	for _, c := range cases {
		set, err := Parse(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, len(c.want), set.Count(), c.in)
		for _, i := range c.want {
			require.True(t, set.IsSet(i), "%s: expected bit %d set", c.in, i)
		}
	}
}

func TestParseRejectsInvalidInput(t *testing.T) {
	cases := []string{"", "a", "3-1", "1-a"}
	for _, in := range cases {
		_, err := Parse(in)
		require.Error(t, err, in)
	}
}

func TestIntersectUnionDifference(t *testing.T) {
	a, err := Parse("0-3")
	require.NoError(t, err)
	b, err := Parse("2-5")
	require.NoError(t, err)

	require.Equal(t, 2, Intersect(a, b).Count())
	require.True(t, Intersect(a, b).IsSet(2))
	require.True(t, Intersect(a, b).IsSet(3))

	require.Equal(t, 6, Union(a, b).Count())

	diff := Difference(a, b)
	require.Equal(t, 2, diff.Count())
	require.True(t, diff.IsSet(0))
	require.True(t, diff.IsSet(1))
}

func TestCycleWrapsAround(t *testing.T) {
	s, err := Parse("0,2,4")
	require.NoError(t, err)

	require.Equal(t, 2, Cycle(0, s))
	require.Equal(t, 4, Cycle(2, s))
	require.Equal(t, 0, Cycle(4, s), "Cycle must wrap back to the lowest member")
}

func TestCycleEmptySetReturnsFrom(t *testing.T) {
	var empty Set
	require.Equal(t, 3, Cycle(3, empty))
}

func TestAll(t *testing.T) {
	s := All(4)
	require.Equal(t, 4, s.Count())
	for i := 0; i < 4; i++ {
		require.True(t, s.IsSet(i))
	}
	require.False(t, s.IsSet(4))
}
