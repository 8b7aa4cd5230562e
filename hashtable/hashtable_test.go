// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hashtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *Table[string], key uint64) []string {
	var vals []string
	c := t.Lookup(key)
	for v, ok := c.Next(); ok; v, ok = c.Next() {
		vals = append(vals, *v)
	}
	return vals
}

func TestDuplicateKeys(t *testing.T) {
	tab := New[string](0)
	tab.Insert(10, "a")
	tab.Insert(10, "b")
	tab.Insert(10+defaultBuckets, "other") // same bucket, different key
	tab.Insert(10, "c")
	assert.Equal(t, 4, tab.Len())
	assert.Equal(t, []string{"a", "b", "c"}, collect(tab, 10))
	assert.Equal(t, []string{"other"}, collect(tab, 10+defaultBuckets))
	assert.Nil(t, collect(tab, 11))

	v, ok := tab.Get(10, func(v *string) bool { return *v == "b" })
	require.True(t, ok)
	*v = "B"
	assert.Equal(t, []string{"a", "B", "c"}, collect(tab, 10))

	_, ok = tab.Get(10, func(v *string) bool { return *v == "z" })
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	tab := New[string](0)
	tab.Insert(1, "a")
	tab.Insert(1, "b")
	tab.Insert(1, "c")

	assert.True(t, tab.Delete(1, func(v *string) bool { return *v == "c" }))
	assert.Equal(t, []string{"a", "b"}, collect(tab, 1))
	// The tail must have moved, so appends go after "b".
	tab.Insert(1, "d")
	assert.Equal(t, []string{"a", "b", "d"}, collect(tab, 1))

	assert.True(t, tab.Delete(1, nil))
	assert.Equal(t, []string{"b", "d"}, collect(tab, 1))
	assert.False(t, tab.Delete(1, func(v *string) bool { return *v == "a" }))
	assert.False(t, tab.Delete(2, nil))
	assert.Equal(t, 2, tab.Len())

	// Freed nodes are reused.
	nNodes := len(tab.nodes)
	tab.Insert(3, "e")
	assert.Equal(t, nNodes, len(tab.nodes))
	assert.Equal(t, []string{"e"}, collect(tab, 3))
}

func TestGrowAndScan(t *testing.T) {
	tab := New[string](0)
	const n = 10000
	for i := 0; i < n; i++ {
		tab.Insert(uint64(i), fmt.Sprint(i))
		tab.Insert(uint64(i), fmt.Sprint(-i))
	}
	assert.Equal(t, 2*n, tab.Len())
	assert.True(t, len(tab.heads) > defaultBuckets)
	for i := 0; i < n; i += 97 {
		assert.Equal(t, []string{fmt.Sprint(i), fmt.Sprint(-i)}, collect(tab, uint64(i)))
	}

	seen := map[uint64]int{}
	tab.Scan(func(key uint64, v *string) bool {
		seen[key]++
		return true
	})
	assert.Equal(t, n, len(seen))
	for _, count := range seen {
		require.Equal(t, 2, count)
	}

	nVisited := 0
	tab.Scan(func(key uint64, v *string) bool {
		nVisited++
		return nVisited < 5
	})
	assert.Equal(t, 5, nVisited)

	stats := tab.Stats()
	assert.Equal(t, 2*n, stats.Entries)
	assert.Equal(t, len(tab.heads), stats.Buckets)
	assert.True(t, stats.UsedBuckets > 0)
	assert.True(t, stats.LongestChain >= 2)
}

func TestHashers(t *testing.T) {
	for _, name := range HasherNames() {
		h, err := HasherByName(name)
		require.NoError(t, err)
		assert.Equal(t, h("ENSG00000141510"), h("ENSG00000141510"), name)
		assert.NotEqual(t, h("ENSG00000141510"), h("ENSG00000141511"), name)
	}
	h, err := HasherByName("")
	require.NoError(t, err)
	assert.Equal(t, Farm("x"), h("x"))
	_, err = HasherByName("md5")
	assert.Error(t, err)
}
