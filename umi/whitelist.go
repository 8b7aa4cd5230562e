// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package umi loads lists of known UMIs and cell barcodes.
package umi

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/umicount/encoding/barcode"
	"github.com/grailbio/umicount/label"
)

// Whitelist is a set of known barcodes, such as the UMIs of a library kit or
// the cell barcodes of a single-cell platform. Thread compatible.
type Whitelist struct {
	tab *label.Table[uint64]
}

// NewWhitelist creates a whitelist from barcode strings. Duplicates are
// ignored. Each barcode must pass barcode.Valid(s, maxLen).
func NewWhitelist(barcodes []string, maxLen int) (*Whitelist, error) {
	w := &Whitelist{tab: label.NewBarcodeTable(len(barcodes))}
	for _, s := range barcodes {
		if err := w.add(s, maxLen); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Whitelist) add(s string, maxLen int) error {
	if err := barcode.Valid(s, maxLen); err != nil {
		return err
	}
	w.tab.Intern(barcode.Encode(s))
	return nil
}

// LoadWhitelist reads a newline-separated list of barcodes from path. The file
// may be compressed. Blank lines are skipped.
func LoadWhitelist(ctx context.Context, path string, maxLen int) (w *Whitelist, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "umi: open whitelist", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	w = &Whitelist{tab: label.NewBarcodeTable(0)}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err = w.add(line, maxLen); err != nil {
			return nil, errors.E(err, errors.Invalid, fmt.Sprintf("umi: whitelist %s:%d", path, lineno))
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.E(err, "umi: read whitelist", path)
	}
	log.Debug.Printf("%s: loaded %d barcodes", path, w.Len())
	return w, nil
}

// Contains checks if the encoded barcode is in the list.
func (w *Whitelist) Contains(code uint64) bool {
	_, ok := w.tab.Lookup(code)
	return ok
}

// Len returns the number of distinct barcodes.
func (w *Whitelist) Len() int { return w.tab.Len() }

// Codes returns the encoded barcodes in file order, without duplicates. The
// caller must not modify the result.
func (w *Whitelist) Codes() []uint64 { return w.tab.Keys() }
