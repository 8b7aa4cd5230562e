// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package hashtable implements an open-chaining hash table keyed by uint64.
//
// Unlike a Go map, a Table may hold several entries under the same key. The
// key is usually a hash of the caller's real key, so the caller walks all the
// entries under a key with Lookup and compares full keys itself.
//
// Entries are stored in one arena slice and chained by index, so a table with
// millions of entries holds only a handful of pointers for the GC to scan.
package hashtable

import (
	"math"

	"github.com/grailbio/base/log"
)

const (
	defaultBuckets = 1021
	// maxLoad is the average chain length above which the table grows.
	maxLoad = 2
)

// nilIndex terminates a chain. Node indexes are stored 1-based so that the
// zero value of a bucket is an empty chain.
const nilIndex = 0

type node[V any] struct {
	key  uint64
	next uint32 // 1-based index of the next node in the chain
	val  V
}

// Table is a hash table from uint64 keys to values of type V. Thread
// compatible.
type Table[V any] struct {
	heads []uint32 // first node of each bucket chain
	tails []uint32 // last node of each bucket chain
	nodes []node[V]
	free  uint32 // head of the free-node list, chained through node.next
	n     int
}

// Stats describes the shape of a Table.
type Stats struct {
	Entries     int
	Buckets     int
	UsedBuckets int
	// LongestChain is the length of the longest bucket chain.
	LongestChain int
}

// New creates an empty table sized for about sizeHint entries.
func New[V any](sizeHint int) *Table[V] {
	if sizeHint < 0 {
		sizeHint = 0
	}
	nBuckets := defaultBuckets
	if want := sizeHint / maxLoad; want > nBuckets {
		nBuckets = want | 1
	}
	return &Table[V]{
		heads: make([]uint32, nBuckets),
		tails: make([]uint32, nBuckets),
		nodes: make([]node[V], 0, sizeHint),
	}
}

// Len returns the number of entries in the table.
func (t *Table[V]) Len() int { return t.n }

func (t *Table[V]) bucket(key uint64) int {
	return int(key % uint64(len(t.heads)))
}

// Insert adds an entry to the end of key's chain. Existing entries under the
// same key are kept.
//
// Pointers returned by Lookup or Scan are invalidated by Insert.
func (t *Table[V]) Insert(key uint64, v V) {
	var idx uint32
	if t.free != nilIndex {
		idx = t.free
		t.free = t.nodes[idx-1].next
		t.nodes[idx-1] = node[V]{key: key, val: v}
	} else {
		if len(t.nodes) >= math.MaxUint32-1 {
			log.Panicf("hashtable: too many entries (%d)", len(t.nodes))
		}
		t.nodes = append(t.nodes, node[V]{key: key, val: v})
		idx = uint32(len(t.nodes))
	}
	t.link(t.bucket(key), idx)
	t.n++
	if t.n > maxLoad*len(t.heads) {
		t.grow()
	}
}

// link appends node idx to the end of bucket b.
func (t *Table[V]) link(b int, idx uint32) {
	t.nodes[idx-1].next = nilIndex
	if t.tails[b] == nilIndex {
		t.heads[b] = idx
	} else {
		t.nodes[t.tails[b]-1].next = idx
	}
	t.tails[b] = idx
}

// grow doubles the number of buckets. Chain order is preserved for entries
// that share a key.
func (t *Table[V]) grow() {
	oldHeads := t.heads
	n := 2*len(oldHeads) + 1
	t.heads = make([]uint32, n)
	t.tails = make([]uint32, n)
	for _, head := range oldHeads {
		for idx := head; idx != nilIndex; {
			next := t.nodes[idx-1].next
			t.link(t.bucket(t.nodes[idx-1].key), idx)
			idx = next
		}
	}
}

// Cursor iterates over the entries stored under one key.
type Cursor[V any] struct {
	t    *Table[V]
	key  uint64
	next uint32
}

// Lookup returns a cursor over all the entries stored under key, in insertion
// order.
func (t *Table[V]) Lookup(key uint64) Cursor[V] {
	return Cursor[V]{t: t, key: key, next: t.heads[t.bucket(key)]}
}

// Next returns the next entry under the cursor's key. It returns false when
// the chain is exhausted. The value may be modified in place.
func (c *Cursor[V]) Next() (*V, bool) {
	for c.next != nilIndex {
		nd := &c.t.nodes[c.next-1]
		c.next = nd.next
		if nd.key == c.key {
			return &nd.val, true
		}
	}
	return nil, false
}

// Get returns the first entry under key for which match returns true.
func (t *Table[V]) Get(key uint64, match func(v *V) bool) (*V, bool) {
	c := t.Lookup(key)
	for {
		v, ok := c.Next()
		if !ok {
			return nil, false
		}
		if match == nil || match(v) {
			return v, true
		}
	}
}

// Delete removes the first entry under key for which match returns true. A nil
// match removes the first entry under key. It returns false if nothing was
// removed.
func (t *Table[V]) Delete(key uint64, match func(v *V) bool) bool {
	b := t.bucket(key)
	var prev uint32
	for idx := t.heads[b]; idx != nilIndex; idx = t.nodes[idx-1].next {
		nd := &t.nodes[idx-1]
		if nd.key != key || (match != nil && !match(&nd.val)) {
			prev = idx
			continue
		}
		if prev == nilIndex {
			t.heads[b] = nd.next
		} else {
			t.nodes[prev-1].next = nd.next
		}
		if t.tails[b] == idx {
			t.tails[b] = prev
		}
		*nd = node[V]{next: t.free}
		t.free = idx
		t.n--
		return true
	}
	return false
}

// Scan calls fn for every entry, bucket by bucket. It stops early if fn
// returns false. fn must not insert into or delete from the table.
func (t *Table[V]) Scan(fn func(key uint64, v *V) bool) {
	for _, head := range t.heads {
		for idx := head; idx != nilIndex; {
			nd := &t.nodes[idx-1]
			if !fn(nd.key, &nd.val) {
				return
			}
			idx = nd.next
		}
	}
}

// Stats computes the table's occupancy statistics.
func (t *Table[V]) Stats() Stats {
	s := Stats{Entries: t.n, Buckets: len(t.heads)}
	for _, head := range t.heads {
		if head == nilIndex {
			continue
		}
		s.UsedBuckets++
		n := 0
		for idx := head; idx != nilIndex; idx = t.nodes[idx-1].next {
			n++
		}
		if n > s.LongestChain {
			s.LongestChain = n
		}
	}
	return s
}
