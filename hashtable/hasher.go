// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hashtable

import (
	"fmt"
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/cespare/xxhash/v2"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/unsafe"
	"github.com/minio/highwayhash"
	"github.com/twmb/murmur3"
)

// Hasher computes the Table key of a string.
type Hasher func(s string) uint64

// highwayKey is the fixed 256-bit key for the Highway hasher. Hash values are
// only used within one process, so the key need not be secret.
var highwayKey = make([]byte, highwayhash.Size)

// Farm hashes with farmhash. It is the default.
func Farm(s string) uint64 { return farm.Hash64(unsafe.StringToBytes(s)) }

// Sea hashes with seahash.
func Sea(s string) uint64 { return seahash.Sum64(unsafe.StringToBytes(s)) }

// Highway hashes with HighwayHash-64.
func Highway(s string) uint64 { return highwayhash.Sum64(unsafe.StringToBytes(s), highwayKey) }

// XX hashes with xxhash64.
func XX(s string) uint64 { return xxhash.Sum64String(s) }

// Murmur3 hashes with murmur3 (lower 64 bits of the 128-bit x64 variant).
func Murmur3(s string) uint64 { return murmur3.Sum64(unsafe.StringToBytes(s)) }

var hashers = map[string]Hasher{
	"farm":    Farm,
	"sea":     Sea,
	"highway": Highway,
	"xx":      XX,
	"murmur3": Murmur3,
}

// HasherNames lists the names accepted by HasherByName.
func HasherNames() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasherByName returns the hasher with the given name. The empty name selects
// Farm.
func HasherByName(name string) (Hasher, error) {
	if name == "" {
		return Farm, nil
	}
	h, ok := hashers[name]
	if !ok {
		return nil, fmt.Errorf("unknown hash function %q, must be one of %v", name, HasherNames())
	}
	return h, nil
}
