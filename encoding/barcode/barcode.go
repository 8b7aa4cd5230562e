// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package barcode converts short nucleotide barcodes (cell barcodes, UMIs,
// sample indexes) to and from compact uint64 codes.
//
// Each base is a digit of a bijective base-5 number (A=1, C=2, G=3, T=4, N=5).
// The first base of the barcode is the least significant digit. Because no
// digit is zero, leading bases are never lost and Decode(Encode(s)) == s for
// any uppercase barcode of at most MaxLen bases. The empty barcode encodes to
// zero, which callers use to mean "absent".
package barcode

import (
	"fmt"
)

// MaxLen is the longest barcode that Encode accepts without overflowing.
const MaxLen = 19

const radix = 5

// baseToDigit maps an ASCII byte to its digit. Zero means "not a base".
var baseToDigit [256]uint8

// digitToBase is the inverse of baseToDigit, uppercase only.
var digitToBase = [radix + 1]byte{0, 'A', 'C', 'G', 'T', 'N'}

func init() {
	for d := 1; d <= radix; d++ {
		b := digitToBase[d]
		baseToDigit[b] = uint8(d)
		baseToDigit[b+'a'-'A'] = uint8(d)
	}
}

// Encode converts seq to its code. It returns 0 for an empty seq. Encoding
// stops at the first byte that is not one of ACGTNacgtn, so the result
// represents only the prefix before that byte.
//
// REQUIRES: the encoded prefix is at most MaxLen bases long.
func Encode(seq string) uint64 {
	n := 0
	for n < len(seq) && baseToDigit[seq[n]] != 0 {
		n++
	}
	var code uint64
	for i := n - 1; i >= 0; i-- {
		code = code*radix + uint64(baseToDigit[seq[i]])
	}
	return code
}

// Len returns the number of bases encoded in code.
func Len(code uint64) int {
	n := 0
	for code > 0 {
		d := (code-1)%radix + 1
		code = (code - d) / radix
		n++
	}
	return n
}

// Decode converts code back to an uppercase barcode. It returns an error if
// the barcode would be longer than maxLen bases.
func Decode(code uint64, maxLen int) (string, error) {
	if n := Len(code); n > maxLen {
		return "", fmt.Errorf("barcode.Decode: code %d decodes to %d bases, limit is %d", code, n, maxLen)
	}
	var buf [32]byte
	n := 0
	for code > 0 {
		d := (code-1)%radix + 1
		buf[n] = digitToBase[d]
		code = (code - d) / radix
		n++
	}
	return string(buf[:n]), nil
}

// Valid checks that seq is a non-empty barcode of at most maxLen bases, made
// only of ACGTN (either case). Callers that need exact round trips must check
// their input with Valid before calling Encode.
func Valid(seq string, maxLen int) error {
	if len(seq) == 0 {
		return fmt.Errorf("empty barcode")
	}
	if len(seq) > maxLen {
		return fmt.Errorf("barcode %q is %d bases long, limit is %d", seq, len(seq), maxLen)
	}
	for i := 0; i < len(seq); i++ {
		if baseToDigit[seq[i]] == 0 {
			return fmt.Errorf("invalid base %q at position %d in barcode %q", seq[i], i, seq)
		}
	}
	return nil
}
