// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rangelist implements a compact set of small integers stored as a
// sorted list of closed ranges.
//
// IDs handed out by a label table are dense, so the UMIs observed for one
// feature in one cell tend to form long runs. A Set stores each run as a single
// range instead of one entry per member.
package rangelist

import "sort"

// span is the closed range [lo, hi].
type span struct {
	lo, hi uint32
}

// Set is a set of uint32 values. The zero value is an empty set. Thread
// compatible.
//
// Invariant: spans are sorted, disjoint and non-adjacent, i.e.,
// spans[i].hi+1 < spans[i+1].lo.
type Set struct {
	spans []span
}

// search returns the index of the first span whose hi is >= x.
func (s *Set) search(x uint32) int {
	return sort.Search(len(s.spans), func(i int) bool { return s.spans[i].hi >= x })
}

// Contains checks if x is in the set.
func (s *Set) Contains(x uint32) bool {
	i := s.search(x)
	return i < len(s.spans) && s.spans[i].lo <= x
}

// Add inserts x into the set. It returns true if x was not present before.
func (s *Set) Add(x uint32) bool {
	i := s.search(x)
	if i < len(s.spans) && s.spans[i].lo <= x {
		return false
	}
	// spans[i-1].hi < x, and spans[i] (if any) starts after x.
	extendLeft := i > 0 && s.spans[i-1].hi+1 == x
	extendRight := i < len(s.spans) && x+1 == s.spans[i].lo
	switch {
	case extendLeft && extendRight:
		s.spans[i-1].hi = s.spans[i].hi
		s.spans = append(s.spans[:i], s.spans[i+1:]...)
	case extendLeft:
		s.spans[i-1].hi = x
	case extendRight:
		s.spans[i].lo = x
	default:
		s.spans = append(s.spans, span{})
		copy(s.spans[i+1:], s.spans[i:])
		s.spans[i] = span{x, x}
	}
	return true
}

// Reset empties the set, keeping its storage for reuse.
func (s *Set) Reset() { s.spans = s.spans[:0] }

// Len returns the number of values in the set.
func (s *Set) Len() int {
	n := 0
	for _, sp := range s.spans {
		n += int(sp.hi-sp.lo) + 1
	}
	return n
}

// NumRanges returns the number of ranges used to store the set.
func (s *Set) NumRanges() int { return len(s.spans) }

// Scan calls fn for every closed range [lo, hi] in ascending order.
func (s *Set) Scan(fn func(lo, hi uint32)) {
	for _, sp := range s.spans {
		fn(sp.lo, sp.hi)
	}
}
