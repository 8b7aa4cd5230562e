// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package label_test

import (
	"fmt"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/umicount/encoding/barcode"
	"github.com/grailbio/umicount/label"
)

func TestInternDeterminism(t *testing.T) {
	tab := label.NewStringTable(0, nil)
	const n = 5000
	for i := 0; i < n; i++ {
		expect.EQ(t, tab.Intern(fmt.Sprintf("ENSG%011d", i)), label.ID(i+1))
	}
	expect.EQ(t, tab.Len(), n)
	for i := n - 1; i >= 0; i-- {
		expect.EQ(t, tab.Intern(fmt.Sprintf("ENSG%011d", i)), label.ID(i+1))
	}
	expect.EQ(t, tab.Len(), n)
	for i := 0; i < n; i += 123 {
		key, ok := tab.Resolve(label.ID(i + 1))
		expect.True(t, ok)
		expect.EQ(t, key, fmt.Sprintf("ENSG%011d", i))
	}
	_, ok := tab.Resolve(label.Invalid)
	expect.False(t, ok)
	_, ok = tab.Resolve(label.ID(n + 1))
	expect.False(t, ok)
}

func TestHashCollisions(t *testing.T) {
	// Every key hashes to the same value, so Intern must compare full keys.
	tab := label.NewStringTable(0, func(string) uint64 { return 42 })
	expect.EQ(t, tab.Intern("G1"), label.ID(1))
	expect.EQ(t, tab.Intern("G2"), label.ID(2))
	expect.EQ(t, tab.Intern("G3"), label.ID(3))
	expect.EQ(t, tab.Intern("G2"), label.ID(2))
	expect.EQ(t, tab.Intern("G1"), label.ID(1))
	expect.EQ(t, tab.Keys(), []string{"G1", "G2", "G3"})
	expect.EQ(t, tab.Stats().LongestChain, 3)
}

func TestLastQueryCache(t *testing.T) {
	tab := label.NewStringTable(0, nil)
	expect.EQ(t, tab.Intern("G1"), label.ID(1))
	expect.EQ(t, tab.Intern("G1"), label.ID(1))
	expect.EQ(t, tab.Intern("G2"), label.ID(2))
	expect.EQ(t, tab.Intern("G1"), label.ID(1))
	expect.EQ(t, tab.Len(), 2)

	// The empty string is a legitimate key; the zero-valued cache must not
	// return an ID for it before it is interned.
	_, ok := tab.Lookup("")
	expect.False(t, ok)
	expect.EQ(t, tab.Intern(""), label.ID(3))
}

func TestBarcodeTable(t *testing.T) {
	tab := label.NewBarcodeTable(0)
	aaaa := barcode.Encode("AAAA")
	cccc := barcode.Encode("CCCC")
	expect.EQ(t, tab.Intern(aaaa), label.ID(1))
	expect.EQ(t, tab.Intern(cccc), label.ID(2))
	expect.EQ(t, tab.Intern(aaaa), label.ID(1))

	id, ok := tab.Lookup(cccc)
	expect.True(t, ok)
	expect.EQ(t, id, label.ID(2))
	_, ok = tab.Lookup(barcode.Encode("GGGG"))
	expect.False(t, ok)
	expect.EQ(t, tab.Len(), 2)

	code, ok := tab.Resolve(2)
	expect.True(t, ok)
	expect.EQ(t, code, cccc)
}
