// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package label interns feature names and barcodes into dense integer IDs.
//
// IDs are assigned sequentially starting at 1 in first-seen order and are
// valid only within one process. Zero is never assigned; it means "no label".
package label

import (
	"github.com/grailbio/umicount/hashtable"
)

// ID is a dense label identifier.
type ID uint32

// Invalid is never returned by Intern.
const Invalid = ID(0)

type entry[K comparable] struct {
	key K
	id  ID
}

// Table maps keys of type K to IDs. Thread compatible.
type Table[K comparable] struct {
	hash  func(K) uint64
	index *hashtable.Table[entry[K]]
	// keys[i] is the key with ID i+1.
	keys []K

	// Most recently interned or looked up key. Input records are usually
	// grouped by cell and feature, so the same key tends to repeat.
	lastKey K
	lastID  ID
}

// NewStringTable creates a table for feature names. The hash index is keyed by
// h(name); a nil h selects hashtable.Farm.
func NewStringTable(sizeHint int, h hashtable.Hasher) *Table[string] {
	if h == nil {
		h = hashtable.Farm
	}
	return newTable[string](sizeHint, h)
}

// NewBarcodeTable creates a table for barcodes encoded by package barcode. The
// code itself is used as the hash key.
func NewBarcodeTable(sizeHint int) *Table[uint64] {
	return newTable[uint64](sizeHint, func(code uint64) uint64 { return code })
}

func newTable[K comparable](sizeHint int, hash func(K) uint64) *Table[K] {
	return &Table[K]{
		hash:  hash,
		index: hashtable.New[entry[K]](sizeHint),
		keys:  make([]K, 0, sizeHint),
	}
}

// Intern returns the ID of key, assigning the next ID if key has not been seen
// before.
func (t *Table[K]) Intern(key K) ID {
	if t.lastID != Invalid && t.lastKey == key {
		return t.lastID
	}
	h := t.hash(key)
	if e, ok := t.index.Get(h, func(e *entry[K]) bool { return e.key == key }); ok {
		t.lastKey, t.lastID = key, e.id
		return e.id
	}
	t.keys = append(t.keys, key)
	id := ID(len(t.keys))
	t.index.Insert(h, entry[K]{key: key, id: id})
	t.lastKey, t.lastID = key, id
	return id
}

// Lookup returns the ID of key without interning it.
func (t *Table[K]) Lookup(key K) (ID, bool) {
	if t.lastID != Invalid && t.lastKey == key {
		return t.lastID, true
	}
	e, ok := t.index.Get(t.hash(key), func(e *entry[K]) bool { return e.key == key })
	if !ok {
		return Invalid, false
	}
	t.lastKey, t.lastID = key, e.id
	return e.id, true
}

// Resolve returns the key with the given ID.
func (t *Table[K]) Resolve(id ID) (K, bool) {
	if id == Invalid || int(id) > len(t.keys) {
		var zero K
		return zero, false
	}
	return t.keys[id-1], true
}

// Len returns the number of interned keys. It is also the largest ID issued.
func (t *Table[K]) Len() int { return len(t.keys) }

// Keys returns the interned keys in ID order, i.e., Keys()[i] has ID i+1. The
// caller must not modify the result.
func (t *Table[K]) Keys() []K { return t.keys }

// Stats returns the statistics of the hash index.
func (t *Table[K]) Stats() hashtable.Stats { return t.index.Stats() }
