// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rangelist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranges(s *Set) [][2]uint32 {
	var r [][2]uint32
	s.Scan(func(lo, hi uint32) { r = append(r, [2]uint32{lo, hi}) })
	return r
}

func TestAddMerges(t *testing.T) {
	var s Set
	assert.False(t, s.Contains(1))
	assert.True(t, s.Add(5))
	assert.True(t, s.Add(7))
	assert.Equal(t, [][2]uint32{{5, 5}, {7, 7}}, ranges(&s))
	assert.True(t, s.Add(6)) // joins both neighbors
	assert.Equal(t, [][2]uint32{{5, 7}}, ranges(&s))
	assert.True(t, s.Add(4)) // extends left edge
	assert.True(t, s.Add(8)) // extends right edge
	assert.True(t, s.Add(1))
	assert.True(t, s.Add(100))
	assert.Equal(t, [][2]uint32{{1, 1}, {4, 8}, {100, 100}}, ranges(&s))
	assert.False(t, s.Add(6))
	assert.False(t, s.Add(1))
	assert.Equal(t, 7, s.Len())
	assert.Equal(t, 3, s.NumRanges())
	for _, x := range []uint32{1, 4, 5, 6, 7, 8, 100} {
		assert.True(t, s.Contains(x), x)
	}
	for _, x := range []uint32{0, 2, 3, 9, 99, 101} {
		assert.False(t, s.Contains(x), x)
	}
}

func TestReset(t *testing.T) {
	var s Set
	for i := uint32(1); i < 100; i += 2 {
		s.Add(i)
	}
	c := cap(s.spans)
	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(1))
	assert.Equal(t, c, cap(s.spans))
	assert.True(t, s.Add(1))
}

func TestRandomAgainstMap(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	var s Set
	model := map[uint32]bool{}
	for i := 0; i < 20000; i++ {
		x := uint32(r.Intn(2000))
		require.Equal(t, !model[x], s.Add(x))
		model[x] = true
		if i%1000 == 0 {
			require.Equal(t, len(model), s.Len())
		}
	}
	for x := uint32(0); x < 2000; x++ {
		require.Equal(t, model[x], s.Contains(x))
	}
	prev := int64(-2)
	for _, rg := range ranges(&s) {
		require.True(t, int64(rg[0]) > prev+1, "ranges must be disjoint and non-adjacent")
		require.True(t, rg[0] <= rg[1])
		prev = int64(rg[1])
	}
}
